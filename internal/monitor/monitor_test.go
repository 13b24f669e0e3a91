package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/config"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

type monitorEnv struct {
	monitor *Monitor
	vault   *vault.Vault
	trail   *audit.Trail
	state   *State
}

func newMonitorEnv(t *testing.T) *monitorEnv {
	t.Helper()
	root := t.TempDir()

	v, err := vault.Init(filepath.Join(root, "vault"))
	if err != nil {
		t.Fatalf("Init vault: %v", err)
	}
	t.Cleanup(v.Close)

	trail, err := audit.Open(filepath.Join(root, "audit"), v.Key(), 1<<20)
	if err != nil {
		t.Fatalf("Open trail: %v", err)
	}
	v.SetTrail(trail)

	state, err := OpenState(filepath.Join(root, "monitor.db"))
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	t.Cleanup(func() { state.Close() })

	cfg := config.MonitorConfig{
		Interval: time.Minute,
		Apps:     []string{"gmail", "budget"},
		Thresholds: config.Thresholds{
			Critical: 5,
			High:     3,
			Medium:   1,
		},
	}

	m := New(cfg, v, trail, state, filepath.Join(root, "alerts.log"))
	return &monitorEnv{monitor: m, vault: v, trail: trail, state: state}
}

func findingsFor(s *Summary, check string) []Finding {
	var out []Finding
	for _, f := range s.Findings {
		if f.Check == check {
			out = append(out, f)
		}
	}
	return out
}

func TestCheck_CleanPass(t *testing.T) {
	env := newMonitorEnv(t)

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(summary.Findings) != 0 {
		t.Errorf("clean vault produced findings: %+v", summary.Findings)
	}

	// Pass is recorded.
	last, err := env.state.LastCheck()
	if err != nil || last.IsZero() {
		t.Errorf("LastCheck = (%v, %v), want a recorded timestamp", last, err)
	}
}

func TestCheck_AuthFailureBurst(t *testing.T) {
	env := newMonitorEnv(t)

	for i := 0; i < authFailureBurst; i++ {
		if err := env.trail.Append(audit.ActionAuthFailure, map[string]any{"service": "gmail"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	found := findingsFor(summary, "auth-failures")
	if len(found) != 1 {
		t.Fatalf("auth-failure findings = %+v, want exactly 1", found)
	}
	if found[0].Severity != SeverityCritical || found[0].App != "gmail" {
		t.Errorf("finding = %+v, want CRITICAL for gmail", found[0])
	}
}

func TestCheck_CriticalEventThresholds(t *testing.T) {
	env := newMonitorEnv(t)

	// Three critical events for budget: at the HIGH threshold.
	for i := 0; i < 3; i++ {
		if err := env.trail.Append(audit.ActionRemoteMirrorFailed, map[string]any{"service": "budget"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	found := findingsFor(summary, "critical-events")
	if len(found) != 1 {
		t.Fatalf("critical-event findings = %+v, want exactly 1", found)
	}
	if found[0].Severity != SeverityHigh || found[0].App != "budget" {
		t.Errorf("finding = %+v, want HIGH for budget", found[0])
	}
}

func TestCheck_BudgetExhaustion(t *testing.T) {
	env := newMonitorEnv(t)

	if err := env.state.SetBudget("gmail", 100); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if err := env.state.RecordUsage("gmail", 100); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	found := findingsFor(summary, "budget")
	if len(found) != 1 || found[0].Severity != SeverityHigh {
		t.Fatalf("budget findings = %+v, want one HIGH", found)
	}
}

func TestSetBudgetStartsFreshPeriod(t *testing.T) {
	env := newMonitorEnv(t)

	if err := env.state.SetBudget("gmail", 100); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if err := env.state.RecordUsage("gmail", 100); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	// Raising the limit starts a new period: usage is cleared too.
	if err := env.state.SetBudget("gmail", 200); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	budget, err := env.state.GetBudget("gmail")
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if budget.Used != 0 || budget.Limit != 200 {
		t.Errorf("budget after reset = %+v, want {Used:0 Limit:200}", budget)
	}
	if budget.Exhausted() {
		t.Error("fresh budget period reported exhausted")
	}
}

func TestCheck_RotationBacklog(t *testing.T) {
	env := newMonitorEnv(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.vault.Now = func() time.Time { return base }
	if err := env.vault.Store(ctx, "gmail", "oauth_token", "abc", 30); err != nil {
		t.Fatalf("Store: %v", err)
	}
	env.vault.Now = func() time.Time { return base.AddDate(0, 0, 31) }

	summary, err := env.monitor.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if summary.RotationBacklog != 1 {
		t.Errorf("RotationBacklog = %d, want 1", summary.RotationBacklog)
	}
	if found := findingsFor(summary, "rotation-backlog"); len(found) != 1 || found[0].Severity != SeverityMedium {
		t.Errorf("rotation findings = %+v, want one MEDIUM", found)
	}
}

func TestCheck_PermissionDrift(t *testing.T) {
	env := newMonitorEnv(t)

	if err := os.Chmod(env.vault.Dir(), 0755); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if summary.PermissionFixes == 0 {
		t.Error("expected permission fixes to be reported")
	}
	if found := findingsFor(summary, "permissions"); len(found) != 1 {
		t.Errorf("permission findings = %+v, want exactly 1", found)
	}
}

func TestCheck_AuditTampering(t *testing.T) {
	env := newMonitorEnv(t)

	if err := env.trail.Append(audit.ActionCredentialStored, map[string]any{"service": "gmail"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Tamper with the log behind the trail's back.
	data, err := os.ReadFile(env.trail.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	tampered := strings.Replace(string(data), "gmail", "evil1", 1)
	if err := os.WriteFile(env.trail.Path(), []byte(tampered), 0600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	found := findingsFor(summary, "audit-integrity")
	if len(found) != 1 || found[0].Severity != SeverityCritical {
		t.Fatalf("audit-integrity findings = %+v, want one CRITICAL", found)
	}
}

func TestAlertLogAndCounters(t *testing.T) {
	env := newMonitorEnv(t)

	for i := 0; i < authFailureBurst; i++ {
		if err := env.trail.Append(audit.ActionAuthFailure, map[string]any{"service": "gmail"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := env.monitor.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	data, err := os.ReadFile(env.monitor.alertLog)
	if err != nil {
		t.Fatalf("read alert log: %v", err)
	}
	if !strings.Contains(string(data), `"CRITICAL"`) {
		t.Errorf("alert log missing CRITICAL entry:\n%s", data)
	}

	counters, _, err := env.monitor.CounterSummary()
	if err != nil {
		t.Fatalf("CounterSummary: %v", err)
	}
	if counters["alerts_CRITICAL"] == 0 {
		t.Errorf("counters = %v, want alerts_CRITICAL > 0", counters)
	}

	if err := env.monitor.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	counters, _, err = env.monitor.CounterSummary()
	if err != nil {
		t.Fatalf("CounterSummary after reset: %v", err)
	}
	if len(counters) != 0 {
		t.Errorf("counters after reset = %v, want empty", counters)
	}
}

func TestEventsOutsideWindowIgnored(t *testing.T) {
	env := newMonitorEnv(t)

	// Auth failures two hours ago are outside the trailing hour.
	env.trail.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	for i := 0; i < authFailureBurst; i++ {
		if err := env.trail.Append(audit.ActionAuthFailure, map[string]any{"service": "gmail"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	env.trail.Now = time.Now

	summary, err := env.monitor.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if found := findingsFor(summary, "auth-failures"); len(found) != 0 {
		t.Errorf("stale events raised findings: %+v", found)
	}
}
