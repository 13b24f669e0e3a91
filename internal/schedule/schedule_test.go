package schedule

import (
	"strings"
	"testing"
)

// fakeCrontab is an in-memory Crontab.
type fakeCrontab struct {
	content string
	writes  int
}

func (f *fakeCrontab) Read() (string, error) { return f.content, nil }

func (f *fakeCrontab) Write(content string) error {
	f.content = content
	f.writes++
	return nil
}

func TestRegister(t *testing.T) {
	ct := &fakeCrontab{content: "0 6 * * * /usr/local/bin/other-job\n"}

	added, err := Register(ct, DefaultSpec, "/usr/local/bin/vaultguard backup")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !added {
		t.Fatal("Register reported no change on first registration")
	}
	if !strings.Contains(ct.content, Marker) {
		t.Errorf("crontab missing marker:\n%s", ct.content)
	}
	if !strings.Contains(ct.content, "other-job") {
		t.Errorf("existing entries were clobbered:\n%s", ct.content)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	ct := &fakeCrontab{}

	if _, err := Register(ct, DefaultSpec, "/usr/local/bin/vaultguard backup"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	added, err := Register(ct, DefaultSpec, "/usr/local/bin/vaultguard backup")
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if added {
		t.Error("second Register added a duplicate entry")
	}
	if ct.writes != 1 {
		t.Errorf("crontab written %d times, want 1", ct.writes)
	}
	if n := strings.Count(ct.content, Marker); n != 1 {
		t.Errorf("marker appears %d times, want 1", n)
	}
}

func TestRegister_InvalidSpec(t *testing.T) {
	ct := &fakeCrontab{}
	if _, err := Register(ct, "not a cron spec", "cmd"); err == nil {
		t.Fatal("Register accepted an invalid cron spec")
	}
	if ct.writes != 0 {
		t.Error("crontab written despite invalid spec")
	}
}

func TestValidateSpec(t *testing.T) {
	valid := []string{"0 2 * * *", "*/5 * * * *", "30 4 1 * 0"}
	for _, spec := range valid {
		if err := ValidateSpec(spec); err != nil {
			t.Errorf("ValidateSpec(%q) = %v, want nil", spec, err)
		}
	}
	invalid := []string{"", "* * *", "61 * * * *"}
	for _, spec := range invalid {
		if err := ValidateSpec(spec); err == nil {
			t.Errorf("ValidateSpec(%q) = nil, want error", spec)
		}
	}
}
