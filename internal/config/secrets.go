package config

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   // enable Vault integration
	Address    string // Vault server address
	Token      string // authentication token (falls back to VAULT_TOKEN)
	MountPath  string // secrets mount path (default "secret")
	SecretPath string // base path for tradecrew secrets
}

// GetVaultConfigFromEnv builds Vault configuration from environment variables
func GetVaultConfigFromEnv() VaultConfig {
	return VaultConfig{
		Enabled:    os.Getenv("VAULT_ADDR") != "",
		Address:    os.Getenv("VAULT_ADDR"),
		Token:      os.Getenv("VAULT_TOKEN"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "tradecrew"),
	}
}

// VaultClient wraps the HashiCorp Vault client for secrets retrieval
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates a Vault client from configuration
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(cfg.Token)

	log.Info().
		Str("address", cfg.Address).
		Str("mount_path", cfg.MountPath).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")
	return &VaultClient{client: client, config: cfg}, nil
}

// GetSecret retrieves a secret map from Vault, KV v2 aware
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// KV v2 nests the payload under "data".
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// GetSecretString retrieves a single string value from Vault
func (vc *VaultClient) GetSecretString(ctx context.Context, path, key string) (string, error) {
	data, err := vc.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key %q not found or not a string at path: %s", key, path)
	}
	return value, nil
}

// LoadSecretsFromVault overlays secrets onto the configuration. Values
// already set (from file or environment) are kept when Vault does not
// hold a replacement; a disabled Vault config is a no-op.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Debug().Msg("Vault disabled, using file and environment secrets")
		return nil
	}

	vc, err := NewVaultClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Vault: %w", err)
	}

	if password, err := vc.GetSecretString(ctx, "database", "password"); err == nil {
		cfg.Database.Password = password
	}
	if password, err := vc.GetSecretString(ctx, "redis", "password"); err == nil {
		cfg.Redis.Password = password
	}
	for name, exchange := range cfg.Exchanges {
		if key, err := vc.GetSecretString(ctx, "exchanges/"+name, "api_key"); err == nil {
			exchange.APIKey = key
		}
		if secret, err := vc.GetSecretString(ctx, "exchanges/"+name, "secret_key"); err == nil {
			exchange.SecretKey = secret
		}
		cfg.Exchanges[name] = exchange
	}
	if key, err := vc.GetSecretString(ctx, "providers/alpaca", "api_key"); err == nil {
		cfg.Providers.Alpaca.APIKey = key
	}
	if secret, err := vc.GetSecretString(ctx, "providers/alpaca", "api_secret"); err == nil {
		cfg.Providers.Alpaca.APISecret = secret
	}
	if token, err := vc.GetSecretString(ctx, "telegram", "bot_token"); err == nil {
		cfg.Telegram.BotToken = token
	}

	log.Info().Msg("Secrets loaded from Vault")
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
