// Package remote mirrors vault credentials to AWS Secrets Manager. The
// backend is strictly opportunistic: the local vault is authoritative,
// remote writes are best-effort, and remote reads fall back to local on
// any failure.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrUnavailable wraps any remote backend failure. Callers treat it as a
// signal to fall back to the local store, never as a hard failure.
var ErrUnavailable = errors.New("remote secrets backend unavailable")

// SecretsClient abstracts the Secrets Manager client for testing.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// Backend is the Secrets Manager mirror.
type Backend struct {
	client SecretsClient
	prefix string
}

type Option func(*Backend)

// WithClient injects a custom Secrets Manager client.
func WithClient(c SecretsClient) Option {
	return func(b *Backend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithPrefix sets the secret name namespace. Names become
// <prefix>/<service>/<key>.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		if strings.TrimSpace(prefix) != "" {
			b.prefix = strings.Trim(prefix, "/")
		}
	}
}

// New constructs the backend, loading default AWS configuration for the
// region unless a client is injected.
func New(ctx context.Context, region string, opts ...Option) (*Backend, error) {
	b := &Backend{prefix: "vaultguard"}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		b.client = secretsmanager.NewFromConfig(cfg)
	}
	return b, nil
}

// Name maps a (service, key) pair to its Secrets Manager secret name.
func (b *Backend) Name(service, key string) string {
	return b.prefix + "/" + service + "/" + key
}

// Put creates or updates the mirrored secret.
func (b *Backend) Put(ctx context.Context, service, key, value string) error {
	name := b.Name(service, key)

	_, err := b.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		if _, err := b.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(value),
		}); err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrUnavailable, name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: put %s: %v", ErrUnavailable, name, err)
}

// Get fetches the mirrored secret value.
func (b *Backend) Get(ctx context.Context, service, key string) (string, error) {
	name := b.Name(service, key)

	out, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %v", ErrUnavailable, name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("%w: %s has no string value", ErrUnavailable, name)
	}
	return *out.SecretString, nil
}
