package vault

import (
	"context"
	"fmt"
	"sync"

	"ai-trading-agent/config"

	"github.com/hashicorp/vault/api"
)

// Credentials represents an API credential pair stored in Vault.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Service   string `json:"service"`
}

// Client wraps the HashiCorp Vault KV v2 client. When Vault is disabled
// the client degrades to an in-memory store so development setups work
// without a Vault server.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]*Credentials // service -> credentials
}

// NewClient creates a new Vault client.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*Credentials),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*Credentials),
	}, nil
}

// IsEnabled reports whether a real Vault backend is configured.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// StoreCredentials writes a credential pair for a service (for example
// "platform" or "engine") to Vault.
func (c *Client) StoreCredentials(ctx context.Context, service string, creds Credentials) error {
	creds.Service = service

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[service] = &creds
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(service)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"service":    service,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[service] = &creds
	c.mu.Unlock()
	return nil
}

// GetCredentials retrieves the credential pair for a service, serving
// repeated lookups from cache.
func (c *Client) GetCredentials(ctx context.Context, service string) (*Credentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[service]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("credentials for %s not found and vault is disabled", service)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(service))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials for %s not found in vault", service)
	}

	// KV v2 wraps the payload in a "data" map
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format for %s", service)
	}

	creds := &Credentials{Service: service}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("credentials for %s are missing api_key", service)
	}

	c.mu.Lock()
	c.cache[service] = creds
	c.mu.Unlock()
	return creds, nil
}

// DeleteCredentials removes a service's credential pair from Vault and
// the local cache.
func (c *Client) DeleteCredentials(ctx context.Context, service string) error {
	c.mu.Lock()
	delete(c.cache, service)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.secretPath(service)); err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}
	return nil
}

// InvalidateCache drops all cached credentials, forcing the next lookup
// to hit Vault.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credentials)
	c.mu.Unlock()
}

// Health checks connectivity to the Vault server.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(service string) string {
	mount := c.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	prefix := c.config.SecretPath
	if prefix == "" {
		prefix = "trading-agent"
	}
	return fmt.Sprintf("%s/data/%s/%s", mount, prefix, service)
}
