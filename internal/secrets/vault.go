package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VaultConfig configures the Vault KV v2 source.
type VaultConfig struct {
	Address   string // e.g. http://localhost:8200
	Token     string
	MountPath string // default "secret"
	Timeout   time.Duration
}

// VaultSource resolves "vault:path#field" references against a KV v2 mount.
type VaultSource struct {
	config VaultConfig
	client *http.Client
}

// NewVaultSource validates cfg and fills defaults.
func NewVaultSource(cfg VaultConfig) (*VaultSource, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token required")
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &VaultSource{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (v *VaultSource) Scheme() string { return "vault" }

func (v *VaultSource) Lookup(ctx context.Context, key string) (string, error) {
	path, field, ok := strings.Cut(key, "#")
	if !ok || path == "" || field == "" {
		return "", fmt.Errorf("vault reference must be path#field, got %q", key)
	}

	endpoint, err := url.JoinPath(v.config.Address, "v1", v.config.MountPath, "data", path)
	if err != nil {
		return "", fmt.Errorf("vault url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.config.Token)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("vault error %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	val, ok := result.Data.Data[field]
	if !ok {
		return "", ErrNotFound
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprint(val), nil
}
