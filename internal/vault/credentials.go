package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/soledad-rivas/vaultguard/internal/audit"
)

// Store upserts a credential and rewrites the encrypted blob atomically.
// The local write always wins: when a remote backend is configured the
// value is mirrored best-effort, and a remote failure degrades to a
// warning rather than failing the operation.
func (v *Vault) Store(ctx context.Context, service, key, value string, rotateDays int) error {
	if service == "" {
		return ErrServiceRequired
	}
	if key == "" {
		return ErrKeyRequired
	}
	if rotateDays <= 0 {
		rotateDays = ClassifyRotation(key)
	}

	now := v.Now().UTC()
	entry := CredentialEntry{
		Service:   service,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		RotateBy:  now.AddDate(0, 0, rotateDays),
	}

	err := v.withWriteLock(func() error {
		store, err := v.loadStore()
		if err != nil {
			return err
		}
		store.put(entry)
		return v.saveStore(store)
	})
	if err != nil {
		return err
	}

	v.auditEvent(audit.ActionCredentialStored, map[string]any{
		"service":     service,
		"key":         key,
		"rotate_days": rotateDays,
	})

	if v.mirror != nil {
		if err := v.mirror.Put(ctx, service, key, value); err != nil {
			slog.Warn("remote mirror write failed, local store is authoritative",
				"service", service, "key", key, "error", err)
			v.auditEvent(audit.ActionRemoteMirrorFailed, map[string]any{
				"service": service,
				"key":     key,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// Get resolves a credential. With a remote backend configured the remote
// copy is consulted first; any remote miss or error falls back to the
// local store. Reads never block on an overdue rotation, they only warn.
func (v *Vault) Get(ctx context.Context, service, key string) (string, error) {
	if v.mirror != nil {
		value, err := v.mirror.Get(ctx, service, key)
		if err == nil {
			v.auditEvent(audit.ActionCredentialAccessed, map[string]any{
				"service": service,
				"key":     key,
				"source":  "remote",
			})
			return value, nil
		}
		slog.Debug("remote lookup failed, falling back to local store",
			"service", service, "key", key, "error", err)
	}

	var entry CredentialEntry
	err := v.withReadLock(func() error {
		store, err := v.loadStore()
		if err != nil {
			return err
		}
		e, ok := store.get(service, key)
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, service, key)
		}
		entry = e
		return nil
	})
	if err != nil {
		return "", err
	}

	if now := v.Now().UTC(); now.After(entry.RotateBy) {
		slog.Warn("credential is overdue for rotation",
			"service", service, "key", key,
			"rotate_by", entry.RotateBy.Format(time.RFC3339))
	}

	v.auditEvent(audit.ActionCredentialAccessed, map[string]any{
		"service": service,
		"key":     key,
		"source":  "local",
	})
	return entry.Value, nil
}

// RotationDue returns every credential whose rotateBy deadline has
// passed, annotated with days overdue. Read-only.
func (v *Vault) RotationDue() ([]DueEntry, error) {
	var due []DueEntry
	err := v.withReadLock(func() error {
		store, err := v.loadStore()
		if err != nil {
			return err
		}
		now := v.Now().UTC()
		for _, keys := range store {
			for _, e := range keys {
				if now.After(e.RotateBy) {
					due = append(due, DueEntry{
						CredentialEntry: e,
						DaysOverdue:     int(now.Sub(e.RotateBy).Hours() / 24),
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Service != due[j].Service {
			return due[i].Service < due[j].Service
		}
		return due[i].Key < due[j].Key
	})
	return due, nil
}

// ExportEnv flattens the decrypted store into SERVICE_KEY -> value pairs
// suitable for injection into a process environment. The caller owns the
// map and decides the injection mechanism; nothing is written to disk.
func (v *Vault) ExportEnv() (map[string]string, error) {
	env := make(map[string]string)
	err := v.withReadLock(func() error {
		store, err := v.loadStore()
		if err != nil {
			return err
		}
		for service, keys := range store {
			for key, e := range keys {
				env[EnvName(service, key)] = e.Value
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// EnvName builds the environment variable name for a credential:
// uppercased service and key joined by an underscore, with every
// non-alphanumeric run collapsed to a single underscore.
func EnvName(service, key string) string {
	return sanitizeEnv(service) + "_" + sanitizeEnv(key)
}

func sanitizeEnv(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
