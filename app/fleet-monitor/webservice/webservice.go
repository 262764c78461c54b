// Package webservice serves the fleet monitor's HTTP API: the live snapshot,
// per-vehicle tasks and history, batch movement analysis, and the
// administrative user pass-through.
package webservice

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/source-dews/fleettrack/business/data/feed"
	"github.com/source-dews/fleettrack/business/data/history"
	"github.com/source-dews/fleettrack/business/data/users"
	"github.com/source-dews/fleettrack/business/fleet"
)

// snapshotTTL is how old the cached snapshot may be before a data request
// triggers its own fetch. Matches the poller's success cadence, so with a
// healthy poller the on-demand path never fires.
const snapshotTTL = 1500 * time.Millisecond

// Service holds what the handlers need to respond to requests.
type Service struct {
	log    *logger.Logger
	client *feed.Client
	cache  *fleet.SnapshotCache
	store  *history.Store
	users  *users.Store
}

// NewService creates a Service. userStore may be nil when the managed user
// database is not configured; the admin endpoints then answer with an error.
func NewService(log *logger.Logger,
	client *feed.Client,
	cache *fleet.SnapshotCache,
	store *history.Store,
	userStore *users.Store) *Service {
	return &Service{
		log:    log,
		client: client,
		cache:  cache,
		store:  store,
		users:  userStore,
	}
}

// defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

// ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

// newRouter attaches every route to a fresh router.
func newRouter(service *Service) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.HandleFunc("/api/data", service.handleData).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", service.handleTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/history/{id}", service.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/batch-analyze", service.handleBatchAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/users", service.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/users", service.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/users/{id}", service.handleDeleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/api/admin/users/{id}/password", service.handleUpdatePassword).Methods(http.MethodPut)
	r.HandleFunc("/api/admin/users/{id}/username", service.handleUpdateUsername).Methods(http.MethodPut)
	return r
}

// createServer creates the configured http.Server with all routes attached.
func createServer(service *Service, httpPort int) *http.Server {
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(service),
	}
	return srv
}

// RunWebService starts the web service and terminates it on shutdown signal.
func RunWebService(log *logger.Logger,
	service *Service,
	httpPort int,
	shutdownSignal <-chan struct{}) {

	srv := createServer(service, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}

// writeJSON marshals payload to the response, reporting a server error when
// marshaling fails.
func (s *Service) writeJSON(w http.ResponseWriter, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		s.log.Printf("error marshaling response: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Error serving request")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		s.log.Printf("error writing json response: %v", err)
	}
}

// writeError answers with a structured error payload.
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.log.Printf("error writing error response: %v", err)
	}
}
