// Package monitor implements the security monitor: a single-threaded
// polling aggregator over the vault, audit trail, and per-application
// state. Each pass runs per-application checks (critical audit events,
// budget exhaustion, auth-failure bursts, audit-chain integrity) and two
// global checks (rotation backlog, permission drift), classifies
// findings by severity, and appends them to a dedicated alert log.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/config"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// authFailureBurst is the trailing-hour auth-failure count that
// escalates to a critical finding.
const authFailureBurst = 3

// Finding is one classified monitoring result.
type Finding struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	App       string    `json:"app,omitempty"`
	Check     string    `json:"check"`
	Message   string    `json:"message"`
}

// Summary aggregates one monitoring pass.
type Summary struct {
	RanAt           time.Time `json:"ran_at"`
	Findings        []Finding `json:"findings"`
	RotationBacklog int       `json:"rotation_backlog"`
	PermissionFixes int       `json:"permission_fixes"`
	AuditEvents     int       `json:"audit_events_verified"`
}

// Monitor polls the subsystem components. It owns no goroutines besides
// the optional metrics listener; the poll loop itself is a blocking
// ticker loop with no overlap between passes.
type Monitor struct {
	cfg      config.MonitorConfig
	vault    *vault.Vault
	trail    *audit.Trail
	state    *State
	alertLog string

	// Now is the clock for trailing-window cutoffs; replaced in tests.
	Now func() time.Time
}

// New assembles a monitor.
func New(cfg config.MonitorConfig, v *vault.Vault, trail *audit.Trail, state *State, alertLog string) *Monitor {
	return &Monitor{
		cfg:      cfg,
		vault:    v,
		trail:    trail,
		state:    state,
		alertLog: alertLog,
		Now:      time.Now,
	}
}

// Run is the looping mode: one pass per interval until the context is
// cancelled. When a listen address is configured the Prometheus metrics
// endpoint is served alongside.
func (m *Monitor) Run(ctx context.Context) error {
	if m.cfg.Listen != "" {
		srv := m.metricsServer()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("metrics endpoint listening", "addr", m.cfg.Listen)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	slog.Info("security monitor started", "interval", m.cfg.Interval, "apps", m.cfg.Apps)

	// Run an initial pass immediately.
	if _, err := m.Check(ctx); err != nil {
		slog.Error("monitoring pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("security monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				slog.Error("monitoring pass failed", "error", err)
			}
		}
	}
}

// Check performs a single monitoring pass and records the findings.
func (m *Monitor) Check(ctx context.Context) (*Summary, error) {
	now := m.Now().UTC()
	summary := &Summary{RanAt: now}
	cutoff := now.Add(-time.Hour)

	// Audit-chain integrity runs once per pass and covers every
	// registered application.
	verified, verifyErr := m.trail.Verify()
	summary.AuditEvents = verified
	if verifyErr != nil {
		m.raise(summary, Finding{
			Severity: SeverityCritical,
			Check:    "audit-integrity",
			Message:  fmt.Sprintf("audit chain verification failed: %v", verifyErr),
		})
	}

	for _, app := range m.cfg.Apps {
		if err := m.checkApp(summary, app, cutoff); err != nil {
			return summary, err
		}
	}

	if err := m.checkRotation(summary); err != nil {
		return summary, err
	}
	m.checkPermissions(summary)

	ChecksTotal.Inc()
	if err := m.state.SetLastCheck(now); err != nil {
		slog.Warn("failed to persist last-check timestamp", "error", err)
	}

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// checkApp runs the per-application checks over the trailing hour.
func (m *Monitor) checkApp(summary *Summary, app string, cutoff time.Time) error {
	events, err := m.trail.EventsSince(cutoff)
	if err != nil {
		return fmt.Errorf("read audit events: %w", err)
	}

	critical, authFailures := 0, 0
	for _, e := range events {
		if !eventForApp(e, app) {
			continue
		}
		if e.Action.Critical() {
			critical++
		}
		if e.Action == audit.ActionAuthFailure {
			authFailures++
		}
	}

	if sev, ok := m.classify(critical); ok {
		m.raise(summary, Finding{
			Severity: sev,
			App:      app,
			Check:    "critical-events",
			Message:  fmt.Sprintf("%d critical audit events in the trailing hour", critical),
		})
	}

	if authFailures >= authFailureBurst {
		m.raise(summary, Finding{
			Severity: SeverityCritical,
			App:      app,
			Check:    "auth-failures",
			Message:  fmt.Sprintf("%d authentication failures in the trailing hour", authFailures),
		})
	}

	budget, err := m.state.GetBudget(app)
	if err != nil {
		return fmt.Errorf("read budget for %s: %w", app, err)
	}
	if budget.Exhausted() {
		m.raise(summary, Finding{
			Severity: SeverityHigh,
			App:      app,
			Check:    "budget",
			Message:  fmt.Sprintf("consumption budget exhausted (%d/%d)", budget.Used, budget.Limit),
		})
	}
	return nil
}

// checkRotation raises one finding covering the whole rotation backlog.
func (m *Monitor) checkRotation(summary *Summary) error {
	due, err := m.vault.RotationDue()
	if err != nil {
		return fmt.Errorf("check rotation backlog: %w", err)
	}
	summary.RotationBacklog = len(due)
	RotationBacklog.Set(float64(len(due)))

	if len(due) > 0 {
		m.raise(summary, Finding{
			Severity: SeverityMedium,
			Check:    "rotation-backlog",
			Message:  fmt.Sprintf("%d credentials overdue for rotation", len(due)),
		})
	}
	return nil
}

// checkPermissions fixes drift in place; any fix is a medium finding.
func (m *Monitor) checkPermissions(summary *Summary) {
	fixes, err := m.vault.ValidatePermissions()
	if err != nil {
		m.raise(summary, Finding{
			Severity: SeverityHigh,
			Check:    "permissions",
			Message:  fmt.Sprintf("permission check failed: %v", err),
		})
		return
	}
	summary.PermissionFixes = len(fixes)
	if len(fixes) > 0 {
		PermissionFixesTotal.Add(float64(len(fixes)))
		m.raise(summary, Finding{
			Severity: SeverityMedium,
			Check:    "permissions",
			Message:  fmt.Sprintf("corrected permission drift on %d paths", len(fixes)),
		})
	}
}

// classify maps a critical-event count to a severity via the configured
// thresholds.
func (m *Monitor) classify(count int) (Severity, bool) {
	t := m.cfg.Thresholds
	switch {
	case t.Critical > 0 && count >= t.Critical:
		return SeverityCritical, true
	case t.High > 0 && count >= t.High:
		return SeverityHigh, true
	case t.Medium > 0 && count >= t.Medium:
		return SeverityMedium, true
	}
	return "", false
}

// raise records a finding: alert log, running counters, metrics.
func (m *Monitor) raise(summary *Summary, f Finding) {
	f.Timestamp = m.Now().UTC()
	summary.Findings = append(summary.Findings, f)

	AlertsTotal.WithLabelValues(string(f.Severity)).Inc()
	if err := m.state.IncrCounter("alerts_" + string(f.Severity)); err != nil {
		slog.Warn("failed to bump alert counter", "error", err)
	}

	if err := m.appendAlert(f); err != nil {
		slog.Warn("failed to append alert", "error", err)
	}

	slog.Warn("security finding",
		"severity", f.Severity, "check", f.Check, "app", f.App, "message", f.Message)
}

func (m *Monitor) appendAlert(f Finding) error {
	line, err := json.Marshal(f)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(m.alertLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(append(line, '\n'))
	return err
}

// CounterSummary reads the running alert counters and last-check time.
func (m *Monitor) CounterSummary() (map[string]uint64, time.Time, error) {
	counters, err := m.state.Counters()
	if err != nil {
		return nil, time.Time{}, err
	}
	last, err := m.state.LastCheck()
	if err != nil {
		return nil, time.Time{}, err
	}
	return counters, last, nil
}

// Reset clears the running alert counters.
func (m *Monitor) Reset() error {
	return m.state.ResetCounters()
}

func (m *Monitor) metricsServer() *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &http.Server{Addr: m.cfg.Listen, Handler: r}
}

// eventForApp matches an audit event to a registered application by its
// service detail.
func eventForApp(e audit.Event, app string) bool {
	if e.Details == nil {
		return false
	}
	if svc, ok := e.Details["service"].(string); ok && svc == app {
		return true
	}
	if a, ok := e.Details["app"].(string); ok && a == app {
		return true
	}
	return false
}
