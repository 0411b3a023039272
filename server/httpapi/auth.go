package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	headerAPIKey    = "X-API-Key"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerSignature = "X-Signature"

	// timestampTolerance is the maximum allowed time difference for
	// request timestamps.
	timestampTolerance = 5 * time.Minute

	// clientCacheTTL is how long the client cache is valid before
	// reloading from disk.
	clientCacheTTL = 30 * time.Second

	apiClientsFileName = "api_clients.json"
)

// APIClient is a service-to-service credential record, grounded on
// config_schema.APIClient and trimmed to the fields the HMAC scheme
// actually needs (the original virtual-table/CRUD machinery around it
// has no counterpart here — credentials are managed by editing the JSON
// file directly, in the same file format).
type APIClient struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Enabled   bool   `json:"enabled"`
}

// loadAPIClients reads api_clients.json from configDir, grounded on
// pkg/config_schema/json_persistence.go's read-or-empty pattern.
func loadAPIClients(configDir string) ([]APIClient, error) {
	path := filepath.Join(configDir, apiClientsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var clients []APIClient
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return clients, nil
}

// ClientStore provides access to API client credentials with in-memory
// caching, grounded on the original ClientStore's shape (TTL-bounded
// read-then-reload-on-write-lock), only the credential type is local
// instead of config_schema's.
type ClientStore struct {
	configDir string
	mu        sync.RWMutex
	cache     map[string]*APIClient // keyed by APIKey
	loadedAt  time.Time
}

// NewClientStore creates a new ClientStore.
func NewClientStore(configDir string) *ClientStore {
	return &ClientStore{configDir: configDir}
}

// GetClient returns an API client by API key, using a cached map with TTL.
func (s *ClientStore) GetClient(apiKey string) (*APIClient, error) {
	s.mu.RLock()
	if s.cache != nil && time.Since(s.loadedAt) < clientCacheTTL {
		client, ok := s.cache[apiKey]
		s.mu.RUnlock()
		return validateClient(client, ok)
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil && time.Since(s.loadedAt) < clientCacheTTL {
		client, ok := s.cache[apiKey]
		return validateClient(client, ok)
	}

	clients, err := loadAPIClients(s.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load api clients: %w", err)
	}

	s.cache = make(map[string]*APIClient, len(clients))
	for i := range clients {
		s.cache[clients[i].APIKey] = &clients[i]
	}
	s.loadedAt = time.Now()

	client, ok := s.cache[apiKey]
	return validateClient(client, ok)
}

func validateClient(client *APIClient, ok bool) (*APIClient, error) {
	if !ok {
		return nil, fmt.Errorf("invalid api key")
	}
	if !client.Enabled {
		return nil, fmt.Errorf("api client '%s' is disabled", client.Name)
	}
	return client, nil
}

// ValidateSignature validates the HMAC-SHA256 request signature.
func ValidateSignature(secret, method, path, timestamp, nonce, body, signature string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp")
	}

	diff := time.Since(time.Unix(ts, 0))
	if math.Abs(diff.Seconds()) > timestampTolerance.Seconds() {
		return fmt.Errorf("timestamp expired")
	}

	message := method + path + timestamp + nonce + body
	expected := computeHMAC(secret, message)

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}

func computeHMAC(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
