package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Upstream struct {
		BaseURL         string `yaml:"base_url"`
		Model           string `yaml:"model"`
		ReasoningEffort string `yaml:"reasoning_effort"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		CooldownMinutes int    `yaml:"cooldown_minutes"`
		// MaxMessages caps how much history is sent upstream per request
		MaxMessages int `yaml:"max_messages"`
	} `yaml:"upstream"`
	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"security"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Sweeper struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"sweeper"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// UpstreamBaseURL returns the configured upstream endpoint or the
// OpenRouter default.
func (c *Config) UpstreamBaseURL() string {
	if c.Upstream.BaseURL != "" {
		return c.Upstream.BaseURL
	}
	return "https://openrouter.ai/api/v1"
}

// UpstreamModel returns the configured model identifier or the default.
func (c *Config) UpstreamModel() string {
	if c.Upstream.Model != "" {
		return c.Upstream.Model
	}
	return "deepseek/deepseek-chat-v3.1:free"
}

// UpstreamTimeout returns the upstream call timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	if c.Upstream.TimeoutSeconds > 0 {
		return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
	}
	return 120 * time.Second
}

// CooldownWindow returns the credential cool-down window applied after a
// rate-limit response.
func (c *Config) CooldownWindow() time.Duration {
	if c.Upstream.CooldownMinutes > 0 {
		return time.Duration(c.Upstream.CooldownMinutes) * time.Minute
	}
	return 5 * time.Minute
}

// MaxMessages returns how many trailing history messages are forwarded
// upstream per chat request.
func (c *Config) MaxMessages() int {
	if c.Upstream.MaxMessages > 0 {
		return c.Upstream.MaxMessages
	}
	return 60
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
