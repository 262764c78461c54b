package webservice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/source-dews/fleettrack/business/data/users"
)

// The admin endpoints are a pure pass-through to the externally managed user
// store. No authentication guards them; the upstream deployment disabled it
// deliberately.

// userStoreReady answers with an error when the user store is not configured.
func (s *Service) userStoreReady(w http.ResponseWriter) bool {
	if s.users == nil {
		s.writeError(w, http.StatusInternalServerError, "User store not connected")
		return false
	}
	return true
}

func (s *Service) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	if !s.userStoreReady(w) {
		return
	}
	list, err := s.users.List()
	if err != nil {
		s.log.Printf("admin: listing users failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, list)
}

func (s *Service) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.userStoreReady(w) {
		return
	}
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Username == "" || request.Password == "" {
		s.writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}
	if err := s.users.Create(request.Username, request.Password); err != nil {
		if errors.Is(err, users.ErrUsernameTaken) {
			s.writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		s.log.Printf("admin: creating user failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, map[string]bool{"success": true})
}

func (s *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.userStoreReady(w) {
		return
	}
	if err := s.users.Delete(mux.Vars(r)["id"]); err != nil {
		s.log.Printf("admin: deleting user failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, map[string]bool{"success": true})
}

func (s *Service) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if !s.userStoreReady(w) {
		return
	}
	var request struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Password == "" {
		s.writeError(w, http.StatusBadRequest, "Password required")
		return
	}
	if err := s.users.UpdatePassword(mux.Vars(r)["id"], request.Password); err != nil {
		s.log.Printf("admin: updating password failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, map[string]bool{"success": true})
}

func (s *Service) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	if !s.userStoreReady(w) {
		return
	}
	var request struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Username == "" {
		s.writeError(w, http.StatusBadRequest, "Username required")
		return
	}
	if err := s.users.UpdateUsername(mux.Vars(r)["id"], request.Username); err != nil {
		if errors.Is(err, users.ErrUsernameTaken) {
			s.writeError(w, http.StatusBadRequest, "Username already taken")
			return
		}
		s.log.Printf("admin: renaming user failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, map[string]bool{"success": true})
}
