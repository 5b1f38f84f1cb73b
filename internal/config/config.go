package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	TokenDuration time.Duration `yaml:"token_duration"`
	Webhook       WebhookConfig `yaml:"webhook"`
}

// WebhookConfig drives outbox dispatch. An empty TargetURL leaves dispatch
// reporting service-unavailable rather than failing startup.
type WebhookConfig struct {
	TargetURL  string        `yaml:"target_url"`
	Secret     string        `yaml:"secret"`
	CronSecret string        `yaml:"cron_secret"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoadConfig builds the config from env defaults, overridden by the YAML
// file at path when given.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("RECRUITFLOW_ADDR", ":8080"),
		JWTSecret:     getEnv("RECRUITFLOW_JWT_SECRET", "supersecretkey"),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("RECRUITFLOW_DATABASE_PATH", "recruitflow.db"),
		TokenDuration: 12 * time.Hour,
		Webhook: WebhookConfig{
			TargetURL:  getEnv("RECRUITFLOW_WEBHOOK_TARGET_URL", ""),
			Secret:     getEnv("RECRUITFLOW_WEBHOOK_SECRET", ""),
			CronSecret: getEnv("RECRUITFLOW_CRON_SECRET", ""),
			Timeout:    10 * time.Second,
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate rejects configurations that are unsafe outside development.
func (c *Config) Validate() error {
	env := os.Getenv("RECRUITFLOW_ENV")
	if env != "development" && c.JWTSecret == "supersecretkey" {
		return fmt.Errorf("jwt_secret must be changed outside development")
	}
	if c.Webhook.TargetURL != "" && c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required when webhook.target_url is set")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 10 * time.Second
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
