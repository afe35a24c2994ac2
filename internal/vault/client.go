// Package vault resolves provider credentials from HashiCorp Vault when
// the tool is configured with a vault address; otherwise credentials
// come straight from the config file.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	vaultapi "github.com/hashicorp/vault/api"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

// ErrClientInit indicates failure to initialize the Vault API client.
var ErrClientInit = errors.New("vault client initialization failed")

// ErrSecretNotFound indicates the requested key is absent from the KV path.
var ErrSecretNotFound = errors.New("secret key not found")

type Option func(*settings)

type settings struct {
	address  string
	token    string
	roleID   string
	roleName string
}

// Client is a thin wrapper over the Vault API for KV credential reads.
type Client struct {
	api      *vaultapi.Client
	settings *settings
}

func WithAddress(address string) Option {
	return func(s *settings) {
		s.address = address
	}
}

func WithToken(token string) Option {
	return func(s *settings) {
		s.token = token
	}
}

func WithAppRole(roleID, roleName string) Option {
	return func(s *settings) {
		s.roleID = roleID
		s.roleName = roleName
	}
}

// NewClient creates and initializes a Vault client using the provided
// options. It performs AppRole login when both roleID and roleName are
// set; otherwise a static token (from env or WithToken) is used.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	s := &settings{
		address: os.Getenv("VAULT_ADDR"),
		token:   os.Getenv("VAULT_TOKEN"),
	}
	for _, opt := range opts {
		opt(s)
	}

	apiCfg := vaultapi.DefaultConfig()
	if s.address != "" {
		apiCfg.Address = s.address
	}

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	client := &Client{api: api, settings: s}
	if s.token != "" {
		client.api.SetToken(s.token)
	}
	if s.roleID != "" && s.roleName != "" {
		if err := client.loginAppRole(ctx); err != nil {
			return nil, fmt.Errorf("AppRole login failed: %w", err)
		}
	}

	return client, nil
}

// loginAppRole generates a secret ID for the configured role and logs in
// with it, replacing the client token with the lease token.
func (c *Client) loginAppRole(ctx context.Context) error {
	path := fmt.Sprintf(approleSecretIDPath, c.settings.roleName)
	resp, err := c.api.Logical().WriteWithContext(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("generate secret ID: %w", err)
	}
	secretID, ok := resp.Data["secret_id"].(string)
	if !ok || secretID == "" {
		return errors.New("vault response carried no secret_id")
	}

	login, err := c.api.Logical().WriteWithContext(ctx, approleLoginPath, map[string]any{
		"role_id":   c.settings.roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("approle login: %w", err)
	}
	if login.Auth == nil || login.Auth.ClientToken == "" {
		return errors.New("approle login returned no client token")
	}
	c.api.SetToken(login.Auth.ClientToken)
	return nil
}

// KVSecret reads one string value from a KV v2 secret.
func (c *Client) KVSecret(ctx context.Context, mount, path, key string) (string, error) {
	secret, err := c.api.KVv2(mount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read secret %s/%s: %w", mount, path, err)
	}
	value, ok := secret.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s in %s/%s", ErrSecretNotFound, key, mount, path)
	}
	return value, nil
}
