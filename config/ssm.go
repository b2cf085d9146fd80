package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStore reads decrypted values from AWS SSM Parameter Store.
// The AWS client is created lazily on first use.
type ParameterStore struct {
	once   sync.Once
	client *ssm.Client
	err    error
}

func NewParameterStore() *ParameterStore {
	return &ParameterStore{}
}

// Get returns the decrypted value of the named parameter.
func (p *ParameterStore) Get(ctx context.Context, name string) (string, error) {
	p.once.Do(func() {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			p.err = fmt.Errorf("load aws config: %w", err)
			return
		}
		p.client = ssm.NewFromConfig(cfg)
	})
	if p.err != nil {
		return "", p.err
	}

	decrypt := true
	result, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}

	return *result.Parameter.Value, nil
}

// ValueOr returns the parameter value, or fallback if it cannot be read.
func (p *ParameterStore) ValueOr(ctx context.Context, name, fallback string) string {
	v, err := p.Get(ctx, name)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

// ResolveSecrets fills in secrets that live in Parameter Store when running in prod.
func (c *Config) ResolveSecrets(ctx context.Context, store *ParameterStore) error {
	if c.Env != "prod" || c.Oracle.APIKeyParam == "" || c.Oracle.APIKey != "" {
		return nil
	}

	key, err := store.Get(ctx, c.Oracle.APIKeyParam)
	if err != nil {
		return fmt.Errorf("resolve oracle api key: %w", err)
	}
	c.Oracle.APIKey = key
	return nil
}
