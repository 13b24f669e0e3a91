package vault

import (
	"strings"
	"time"
)

// Rotation policy day counts. API-key-shaped names get the longer period.
const (
	DefaultRotateDays = 30
	APIKeyRotateDays  = 90
)

// CredentialEntry is one (service, key) -> value record with rotation
// metadata. Entries exist decrypted in memory only; on disk they live
// inside the single encrypted store blob.
type CredentialEntry struct {
	Service   string            `json:"service"`
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	CreatedAt time.Time         `json:"created_at"`
	RotateBy  time.Time         `json:"rotate_by"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// credentialStore maps service -> key -> entry. The whole map is
// JSON-encoded and encrypted as one blob; every write replaces the blob.
type credentialStore map[string]map[string]CredentialEntry

func (s credentialStore) get(service, key string) (CredentialEntry, bool) {
	keys, ok := s[service]
	if !ok {
		return CredentialEntry{}, false
	}
	e, ok := keys[key]
	return e, ok
}

func (s credentialStore) put(e CredentialEntry) {
	keys, ok := s[e.Service]
	if !ok {
		keys = make(map[string]CredentialEntry)
		s[e.Service] = keys
	}
	keys[e.Key] = e
}

// DueEntry is a credential whose rotation deadline has passed.
type DueEntry struct {
	CredentialEntry
	DaysOverdue int
}

// ClassifyRotation picks the rotation period for a credential name:
// names containing "api" or "key" look like API keys and rotate on the
// longer cycle.
func ClassifyRotation(key string) int {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "api") || strings.Contains(lower, "key") {
		return APIKeyRotateDays
	}
	return DefaultRotateDays
}
