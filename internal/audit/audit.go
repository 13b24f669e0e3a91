// Package audit provides the append-only audit trail. Every sensitive
// vault, backup, and monitor operation appends one structured event to a
// line-oriented log file with owner-only permissions. Events are chained
// with HMAC-SHA256 keyed by the vault key, so truncation or in-place
// edits of the log are detectable.
package audit

import (
	"bufio"
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soledad-rivas/vaultguard/internal/crypto"
)

// Action identifies the operation an audit event records.
type Action string

const (
	ActionCredentialStored   Action = "CREDENTIAL_STORED"
	ActionCredentialAccessed Action = "CREDENTIAL_ACCESSED"
	ActionEnvFileMigrated    Action = "ENV_FILE_MIGRATED"
	ActionRemoteMirrorFailed Action = "REMOTE_MIRROR_FAILED"
	ActionPermissionsFixed   Action = "PERMISSIONS_REPAIRED"
	ActionAuthFailure        Action = "AUTH_FAILURE"
	ActionBackupCreated      Action = "BACKUP_CREATED"
	ActionBackupRestored     Action = "BACKUP_RESTORED"
	ActionBackupPruned       Action = "BACKUP_PRUNED"
	ActionDRTestRun          Action = "DR_TEST_RUN"
	ActionAlertRaised        Action = "ALERT_RAISED"
)

// criticalActions are the actions the security monitor counts when
// looking for suspicious activity in the trailing window.
var criticalActions = map[Action]bool{
	ActionRemoteMirrorFailed: true,
	ActionAuthFailure:        true,
	ActionAlertRaised:        true,
}

// Critical reports whether the action counts toward the monitor's
// critical-event tally.
func (a Action) Critical() bool {
	return criticalActions[a]
}

const logName = "audit.log"

var (
	// ErrChainBroken is returned by Verify when an event's HMAC link does
	// not match the recomputed chain.
	ErrChainBroken = errors.New("audit chain broken")
)

// Event is one audit trail record. HMAC chains the event to its
// predecessor in the same log file.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    Action         `json:"action"`
	Actor     string         `json:"actor"`
	PID       int            `json:"pid"`
	Details   map[string]any `json:"details,omitempty"`
	HMAC      string         `json:"hmac"`
}

// payload returns the canonical byte representation of the event used as
// HMAC input. json.Marshal sorts map keys, so Details is deterministic.
func (e *Event) payload() []byte {
	details, _ := json.Marshal(e.Details)
	return fmt.Appendf(nil, "%s|%d|%s|%s|%d|%s",
		e.ID, e.Timestamp.UnixNano(), e.Action, e.Actor, e.PID, details)
}

// Trail is an append-only, HMAC-chained audit log backed by a directory
// holding the current log file and gzip-rotated archives.
type Trail struct {
	dir      string
	key      []byte
	maxBytes int64

	mu       sync.Mutex
	lastHMAC []byte

	// Now is the clock used for event timestamps; replaced in tests.
	Now func() time.Time
}

// Open prepares the audit directory and loads the chain tail from the
// current log file. The directory is created 0700 if absent.
func Open(dir string, key []byte, maxBytes int64) (*Trail, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	t := &Trail{
		dir:      dir,
		key:      key,
		maxBytes: maxBytes,
		Now:      time.Now,
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the chain tail from the log on disk. Required whenever
// the log file is replaced underneath an open trail, as a restore does;
// appending on a stale tail would break the chain.
func (t *Trail) Reload() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastHMAC = nil
	last, err := t.lastEvent()
	if err != nil {
		return err
	}
	if last != nil {
		mac, err := hex.DecodeString(last.HMAC)
		if err != nil {
			return fmt.Errorf("malformed hmac in audit log: %w", err)
		}
		t.lastHMAC = mac
	}
	return nil
}

// Path returns the current log file path.
func (t *Trail) Path() string {
	return filepath.Join(t.dir, logName)
}

// Append writes one event to the log, chained to the previous one. A log
// already past the size threshold is archived first, so the new event
// always starts or continues the current file's chain.
func (t *Trail) Append(action Action, details map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.rotateIfNeeded(); err != nil {
		return err
	}

	e := &Event{
		ID:        uuid.New().String(),
		Timestamp: t.Now().UTC(),
		Action:    action,
		Actor:     actor(),
		PID:       os.Getpid(),
		Details:   details,
	}
	mac := crypto.ChainHMAC(t.key, t.lastHMAC, e.payload())
	e.HMAC = hex.EncodeToString(mac)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	f, err := os.OpenFile(t.Path(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	t.lastHMAC = mac

	return nil
}

// Verify walks the current log file and recomputes every chain link.
// It returns the number of verified events, or ErrChainBroken wrapped
// with the position of the first bad event.
func (t *Trail) Verify() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	events, err := t.readAll()
	if err != nil {
		return 0, err
	}

	var prev []byte
	for i := range events {
		e := &events[i]
		mac, err := hex.DecodeString(e.HMAC)
		if err != nil {
			return i, fmt.Errorf("event %d: %w", i, ErrChainBroken)
		}
		if !crypto.VerifyChainHMAC(t.key, prev, e.payload(), mac) {
			return i, fmt.Errorf("event %d: %w", i, ErrChainBroken)
		}
		prev = mac
	}
	return len(events), nil
}

// EventsSince returns the events in the current log with a timestamp at
// or after the cutoff.
func (t *Trail) EventsSince(cutoff time.Time) ([]Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	events, err := t.readAll()
	if err != nil {
		return nil, err
	}

	var out []Event
	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountSince tallies events since the cutoff, optionally filtered by a
// predicate on the action. A nil predicate counts everything.
func (t *Trail) CountSince(cutoff time.Time, match func(Action) bool) (int, error) {
	events, err := t.EventsSince(cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range events {
		if match == nil || match(e.Action) {
			n++
		}
	}
	return n, nil
}

// rotateIfNeeded archives the current log once it exceeds the size
// threshold. The archive keeps its chain intact; the fresh log starts a
// new chain. Caller must hold t.mu.
func (t *Trail) rotateIfNeeded() error {
	if t.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(t.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() <= t.maxBytes {
		return nil
	}

	archive := filepath.Join(t.dir, fmt.Sprintf("audit-%s.log.gz", t.Now().UTC().Format("20060102-150405")))
	if err := gzipFile(t.Path(), archive); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	if err := os.Remove(t.Path()); err != nil {
		return fmt.Errorf("remove rotated audit log: %w", err)
	}
	t.lastHMAC = nil
	return nil
}

func (t *Trail) readAll() ([]Event, error) {
	f, err := os.Open(t.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("malformed audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return events, nil
}

func (t *Trail) lastEvent() (*Event, error) {
	events, err := t.readAll()
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[len(events)-1], nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
