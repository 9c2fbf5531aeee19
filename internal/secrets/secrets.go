// Package secrets resolves the signing key from the environment or AWS Secrets Manager.
package secrets

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/eth"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

type awsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads Secrets Manager secrets. A key of the form "<secret-id>#<field>" selects one
// field of a JSON secret.
type AWSProvider struct {
	client awsClient
}

func NewAWS(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client awsClient) (*AWSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWSProvider{client: client}, nil
}

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("%w: nil aws provider", ErrInvalidConfig)
	}
	id, field, _ := strings.Cut(strings.TrimSpace(key), "#")
	if id == "" {
		return "", fmt.Errorf("%w: empty secret id", ErrInvalidConfig)
	}
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &id,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", id, err)
	}
	var v string
	switch {
	case out.SecretString != nil && strings.TrimSpace(*out.SecretString) != "":
		v = strings.TrimSpace(*out.SecretString)
	case len(out.SecretBinary) > 0:
		v = strings.TrimSpace(string(out.SecretBinary))
	default:
		return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, id)
	}
	if field == "" {
		return v, nil
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(v), &fields); err != nil {
		return "", fmt.Errorf("%w: secret %q is not a JSON object", ErrInvalidConfig, id)
	}
	fv := strings.TrimSpace(fields[field])
	if fv == "" {
		return "", fmt.Errorf("%w: secret %q has no field %q", ErrNotFound, id, field)
	}
	return fv, nil
}

// EnvProvider reads variables through Lookup, which defaults to os.LookupEnv.
type EnvProvider struct {
	Lookup func(string) (string, bool)
}

func NewEnv() *EnvProvider {
	return &EnvProvider{Lookup: os.LookupEnv}
}

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil env provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty env key", ErrInvalidConfig)
	}
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(key)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, key)
	}
	return v, nil
}

// LoadSigningKey fetches key from p and parses it as a hex secp256k1 private key. Errors never
// contain key material.
func LoadSigningKey(ctx context.Context, p Provider, key string) (*ecdsa.PrivateKey, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInvalidConfig)
	}
	raw, err := p.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	priv, err := eth.ParsePrivateKeyHex(raw)
	if err != nil {
		return nil, fmt.Errorf("secrets: %s: %w", key, err)
	}
	return priv, nil
}
