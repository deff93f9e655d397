// internal/vault/vault.go
//
// Vault client wrapper.
//
// Context
// -------
//   - Resolves `vault:<mount>/<path>#<key>` references found in the
//     configuration tree (bot token, database DSN, Mongo URI).
//   - Reads KV-v2 secrets once per path and serves every key of that
//     secret from memory, so a token and a DSN stored side by side cost
//     one request.
//   - The client lives only for a config load; there is no background
//     token renewal.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(zap.S())                    // during boot.
//  2. val, err := cli.Resolve(ctx, "vault:kv/reveal#token")
//
// Notes
// -----
//   - VAULT_ADDR and VAULT_TOKEN come from the environment (the api
//     package's ReadEnvironment).
//   - Oxford commas, two spaces after periods.  No em dash.
package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// RefPrefix marks a configuration value that lives in Vault.
const RefPrefix = "vault:"

// ParseRef splits "vault:<mount>/<path>#<key>" into the secret path and
// key.  ok is false when raw is not a Vault reference at all.
func ParseRef(raw string) (secretPath, key string, ok bool, err error) {
	if !strings.HasPrefix(raw, RefPrefix) {
		return "", "", false, nil
	}
	ref := strings.TrimPrefix(raw, RefPrefix)
	i := strings.LastIndexByte(ref, '#')
	if i <= 0 || i == len(ref)-1 {
		return "", "", true, fmt.Errorf("vault ref %q: want vault:<mount>/<path>#<key>", raw)
	}
	secretPath, key = ref[:i], ref[i+1:]
	if mount, rel := splitMount(secretPath); mount == "" || rel == "" {
		return "", "", true, fmt.Errorf("vault ref %q: path needs a mount and a secret", raw)
	}
	return secretPath, key, true, nil
}

//
// SECTION 1.  Client
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger

	mu      sync.Mutex
	secrets map[string]map[string]any // secret path → KV data
}

// New builds a client from VAULT_ADDR / VAULT_TOKEN.  It does not contact
// the server.
func New(log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	return &Client{
		api:     apiCli,
		log:     log,
		secrets: make(map[string]map[string]any),
	}, nil
}

// Resolve returns the secret behind a vault: reference.  Values without
// the prefix are returned unchanged.
func (c *Client) Resolve(ctx context.Context, raw string) (string, error) {
	path, key, ok, err := ParseRef(raw)
	if err != nil || !ok {
		return raw, err
	}
	return c.Get(ctx, path, key)
}

// Get fetches key from the KV-v2 secret at secretPath.
func (c *Client) Get(ctx context.Context, secretPath, key string) (string, error) {
	data, err := c.secret(ctx, secretPath)
	if err != nil {
		return "", err
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}
	return s, nil
}

// secret reads secretPath once and memoises the whole data map.  The
// lock is held across the read so concurrent callers share one request.
func (c *Client) secret(ctx context.Context, secretPath string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.secrets[secretPath]; ok {
		return data, nil
	}
	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	c.log.Debugw("vault secret read", "path", secretPath, "keys", len(sec.Data))
	c.secrets[secretPath] = sec.Data
	return sec.Data, nil
}

//
// SECTION 2.  Helpers
//

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}
