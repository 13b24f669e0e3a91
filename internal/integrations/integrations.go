// Package integrations builds invocation configuration for the
// well-known automation integrations. Each integration names the
// credential keys it needs by convention; Build resolves them from the
// vault and emits a YAML document describing command, arguments, and
// required environment.
package integrations

import (
	"context"
	"fmt"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/soledad-rivas/vaultguard/internal/vault"
)

// spec describes one well-known integration: how to invoke it and which
// vault credentials it consumes.
type spec struct {
	Command string
	Args    []string
	Keys    []string // credential keys under the integration's service name
}

// wellKnown is the fixed set of supported integrations.
var wellKnown = map[string]spec{
	"gmail": {
		Command: "automation-runner",
		Args:    []string{"run", "gmail-classifier"},
		Keys:    []string{"oauth_token", "client_secret"},
	},
	"github": {
		Command: "automation-runner",
		Args:    []string{"run", "repo-reporter"},
		Keys:    []string{"api_key"},
	},
	"openai": {
		Command: "automation-runner",
		Args:    []string{"run", "summarizer"},
		Keys:    []string{"api_key"},
	},
	"aws": {
		Command: "automation-runner",
		Args:    []string{"run", "lambda-deploy"},
		Keys:    []string{"access_key_id", "secret_access_key"},
	},
	"notion": {
		Command: "automation-runner",
		Args:    []string{"run", "ledger-sync"},
		Keys:    []string{"api_key"},
	},
}

// Integration is one entry in the emitted document.
type Integration struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env"`
}

// Document is the emitted integration configuration.
type Document struct {
	Version      int                    `yaml:"version"`
	Integrations map[string]Integration `yaml:"integrations"`
}

// Names returns the supported integration names, sorted.
func Names() []string {
	names := make([]string, 0, len(wellKnown))
	for name := range wellKnown {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves credentials for the named integrations and assembles
// the configuration document. Unknown names and missing credentials are
// errors.
func Build(ctx context.Context, v *vault.Vault, names []string) (*Document, error) {
	doc := &Document{
		Version:      1,
		Integrations: make(map[string]Integration),
	}

	for _, name := range names {
		s, ok := wellKnown[name]
		if !ok {
			return nil, fmt.Errorf("unknown integration %q (supported: %v)", name, Names())
		}

		env := make(map[string]string, len(s.Keys))
		for _, key := range s.Keys {
			value, err := v.Get(ctx, name, key)
			if err != nil {
				return nil, fmt.Errorf("integration %s needs credential %s/%s: %w", name, name, key, err)
			}
			env[vault.EnvName(name, key)] = value
		}

		doc.Integrations[name] = Integration{
			Command: s.Command,
			Args:    s.Args,
			Env:     env,
		}
	}
	return doc, nil
}

// Marshal renders the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal integration config: %w", err)
	}
	return out, nil
}
