package integrations

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soledad-rivas/vaultguard/internal/vault"
)

func newVaultWithCreds(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.Init(filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("Init vault: %v", err)
	}
	t.Cleanup(v.Close)

	ctx := context.Background()
	creds := map[string][2]string{
		"gmail/oauth_token":   {"gmail", "oauth_token"},
		"gmail/client_secret": {"gmail", "client_secret"},
		"github/api_key":      {"github", "api_key"},
	}
	for value, sk := range creds {
		if err := v.Store(ctx, sk[0], sk[1], value, 0); err != nil {
			t.Fatalf("Store(%s/%s): %v", sk[0], sk[1], err)
		}
	}
	return v
}

func TestBuild(t *testing.T) {
	v := newVaultWithCreds(t)

	doc, err := Build(context.Background(), v, []string{"gmail", "github"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(doc.Integrations) != 2 {
		t.Fatalf("got %d integrations, want 2", len(doc.Integrations))
	}

	gmail := doc.Integrations["gmail"]
	if gmail.Command != "automation-runner" {
		t.Errorf("gmail command = %q", gmail.Command)
	}
	if gmail.Env["GMAIL_OAUTH_TOKEN"] != "gmail/oauth_token" {
		t.Errorf("gmail env = %v", gmail.Env)
	}

	github := doc.Integrations["github"]
	if github.Env["GITHUB_API_KEY"] != "github/api_key" {
		t.Errorf("github env = %v", github.Env)
	}
}

func TestBuild_UnknownIntegration(t *testing.T) {
	v := newVaultWithCreds(t)
	if _, err := Build(context.Background(), v, []string{"slack"}); err == nil {
		t.Fatal("Build with unknown integration succeeded, want error")
	}
}

func TestBuild_MissingCredential(t *testing.T) {
	v := newVaultWithCreds(t)
	_, err := Build(context.Background(), v, []string{"openai"})
	if err == nil {
		t.Fatal("Build without openai credentials succeeded, want error")
	}
	if !strings.Contains(err.Error(), "openai/api_key") {
		t.Errorf("error %v does not name the missing credential", err)
	}
}

func TestMarshal(t *testing.T) {
	v := newVaultWithCreds(t)
	doc, err := Build(context.Background(), v, []string{"github"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{"version: 1", "github:", "command: automation-runner", "GITHUB_API_KEY"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("marshaled document missing %q:\n%s", want, out)
		}
	}
}
