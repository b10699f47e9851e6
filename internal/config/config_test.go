package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "STORE_BACKEND", "PRESENCE_BACKEND", "PRESENCE_GRACE", "EDIT_WINDOW", "CALL_RING_TIMEOUT", "JWT_SECRET"} {
		t.Setenv(key, "")
	}
	// t.Setenv with "" still marks the key as present; GetEnv honours that,
	// so restore the values the defaults depend on.
	t.Setenv("PORT", "8081")
	t.Setenv("ENV", "development")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PRESENCE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", defaultJWTSecret)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.EditWindow != 15*time.Minute {
		t.Errorf("EditWindow = %v, want 15m", cfg.EditWindow)
	}
	if cfg.CallRingTimeout != 30*time.Second {
		t.Errorf("CallRingTimeout = %v, want 30s", cfg.CallRingTimeout)
	}
	if cfg.PresenceGrace != 0 {
		t.Errorf("PresenceGrace = %v, want 0", cfg.PresenceGrace)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PRESENCE_BACKEND", "redis")
	t.Setenv("PRESENCE_GRACE", "5s")
	t.Setenv("EDIT_WINDOW", "10m")
	t.Setenv("PUSH_ENABLED", "false")
	t.Setenv("JWT_SECRET", "my-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.PresenceBackend != "redis" {
		t.Errorf("PresenceBackend = %q, want redis", cfg.PresenceBackend)
	}
	if cfg.PresenceGrace != 5*time.Second {
		t.Errorf("PresenceGrace = %v, want 5s", cfg.PresenceGrace)
	}
	if cfg.EditWindow != 10*time.Minute {
		t.Errorf("EditWindow = %v, want 10m", cfg.EditWindow)
	}
	if cfg.PushEnabled {
		t.Error("PushEnabled = true, want false")
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CALL_RING_TIMEOUT", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should reject an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              "8081",
			Env:               "development",
			StoreBackend:      "postgres",
			DatabaseURL:       "postgres://localhost/test",
			PresenceBackend:   "memory",
			JWTSecret:         defaultJWTSecret,
			EditWindow:        15 * time.Minute,
			CallRingTimeout:   30 * time.Second,
			WSEventsPerSecond: 20,
			WSEventBurst:      40,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid dev config", func(*Config) {}, false},
		{"memory store without dsn", func(c *Config) { c.StoreBackend = "memory"; c.DatabaseURL = "" }, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"postgres without dsn", func(c *Config) { c.DatabaseURL = "" }, true},
		{"unknown store", func(c *Config) { c.StoreBackend = "mongo" }, true},
		{"unknown presence backend", func(c *Config) { c.PresenceBackend = "etcd" }, true},
		{"default secret in production", func(c *Config) { c.Env = "production" }, true},
		{"custom secret in production", func(c *Config) { c.Env = "production"; c.JWTSecret = "s3cr3t" }, false},
		{"negative grace", func(c *Config) { c.PresenceGrace = -time.Second }, true},
		{"zero ring timeout", func(c *Config) { c.CallRingTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := Validate(cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
