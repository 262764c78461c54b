// Package feed accesses the upstream fleet service. Every data endpoint sits
// behind the same handshake: the caller wraps a fresh symmetric key with the
// service's rotating public key, and the response comes back as an
// authenticated ciphertext envelope.
package feed

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config holds the upstream endpoints and timeouts.
type Config struct {
	PublicKeyURL    string
	FleetURL        string
	TaskURLTemplate string
	KeyTimeout      time.Duration
	DataTimeout     time.Duration
}

// Client performs the key-exchange and decrypt protocol against the upstream
// service. The public key is cached process wide until a request fails with a
// non-200 status, which usually means the key rotated; invalidating forces a
// refetch on the next call. Safe for concurrent use.
type Client struct {
	log        *log.Logger
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	publicKey string
}

// NewClient creates a Client. TLS verification is disabled deliberately: the
// upstream's certificate chain is frequently broken and the payload carries
// its own authentication via the AEAD tag.
func NewClient(log *log.Logger, cfg Config) *Client {
	if cfg.KeyTimeout == 0 {
		cfg.KeyTimeout = 4 * time.Second
	}
	if cfg.DataTimeout == 0 {
		cfg.DataTimeout = 8 * time.Second
	}
	return &Client{
		log: log,
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// ArmorKey wraps a bare base64 key in PEM armor. Keys already carrying a PEM
// header pass through unchanged, so armoring is idempotent.
func ArmorKey(key string) string {
	if strings.Contains(key, "-----BEGIN") {
		return key
	}
	return "-----BEGIN PUBLIC KEY-----\n" + key + "\n-----END PUBLIC KEY-----"
}

// fetchPublicKey returns the cached upstream public key, fetching it when no
// cached copy exists.
func (c *Client) fetchPublicKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publicKey != "" {
		return c.publicKey, nil
	}

	keyCtx, cancel := context.WithTimeout(ctx, c.cfg.KeyTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(keyCtx, http.MethodGet, c.cfg.PublicKeyURL, nil)
	if err != nil {
		return "", fmt.Errorf("building public key request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching public key: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Key string `json:"key"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decoding public key response: %w", err)
	}
	if envelope.Key == "" {
		return "", errors.New("public key response carried no key")
	}

	c.publicKey = ArmorKey(envelope.Key)
	return c.publicKey, nil
}

// invalidateKey drops the cached public key so the next call refetches it.
func (c *Client) invalidateKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publicKey = ""
}

// SecureRequest performs one full protocol round trip against endpoint:
// generate a fresh 256-bit symmetric key, wrap it with the upstream public
// key using RSA-OAEP/SHA-256, post it as encKey alongside extraPayload, and
// open the returned AEAD envelope. Any failure at any step is returned to the
// caller, who treats it as "no data this cycle" rather than fatal.
func (c *Client) SecureRequest(ctx context.Context, endpoint string, extraPayload map[string]interface{}) ([]byte, error) {
	publicKeyPEM, err := c.fetchPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	rsaKey, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		c.invalidateKey()
		return nil, err
	}

	symmetricKey := make([]byte, 32)
	if _, err = rand.Read(symmetricKey); err != nil {
		return nil, fmt.Errorf("generating symmetric key: %w", err)
	}
	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaKey, symmetricKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping symmetric key: %w", err)
	}

	payload := map[string]interface{}{
		"encKey": base64.StdEncoding.EncodeToString(wrappedKey),
	}
	for key, value := range extraPayload {
		payload[key] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request payload: %w", err)
	}

	dataCtx, cancel := context.WithTimeout(ctx, c.cfg.DataTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(dataCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", endpoint, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		// the upstream rotates its key without notice; a rejected request
		// is the only signal we get
		c.invalidateKey()
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}

	var envelope struct {
		IV   string `json:"iv"`
		Data string `json:"data"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope iv: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope data: %w", err)
	}

	plaintext, err := DecryptEnvelope(symmetricKey, iv, sealed)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// DecryptEnvelope opens an upstream ciphertext with AES-GCM. sealed carries
// the 16-byte authentication tag appended to the ciphertext, which is the
// layout cipher.AEAD.Open expects.
func DecryptEnvelope(key, iv, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fmt.Errorf("building GCM: %w", err)
	}
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("opening envelope: %w", err)
	}
	return plaintext, nil
}

// setHeaders applies the fixed request headers. Origin and referer mirror the
// upstream site's own origin; the service rejects requests without them.
func (c *Client) setHeaders(req *http.Request) {
	origin := originOf(c.cfg.PublicKeyURL)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Connection", "keep-alive")
}

// originOf returns the scheme://host origin of a url, or the url itself when
// it does not parse.
func originOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Scheme + "://" + parsed.Host
}

// parsePublicKey parses a PEM encoded RSA public key.
func parsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("public key is not valid PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaKey, isRSA := parsed.(*rsa.PublicKey)
	if !isRSA {
		return nil, errors.New("public key is not an RSA key")
	}
	return rsaKey, nil
}
