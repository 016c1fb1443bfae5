package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Twilio: TwilioConfig{
			AccountSID:    "AC123",
			AuthToken:     "tok",
			FromNumber:    "+15550001111",
			PublicBaseURL: "https://dialer.example.com",
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "dialer"
	c.Auth.JWTAudience = "api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_DialerDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Dialer.BotCount != 4 {
		t.Fatalf("expected default bot count 4, got %d", c.Dialer.BotCount)
	}
	if c.Dialer.CallsPerBot != 2 {
		t.Fatalf("expected default calls per bot 2, got %d", c.Dialer.CallsPerBot)
	}
	if c.Dialer.CallTimeout != 30*time.Second {
		t.Fatalf("expected default call timeout 30s, got %s", c.Dialer.CallTimeout)
	}
	if c.Dialer.PollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval 2s, got %s", c.Dialer.PollInterval)
	}
}

func TestValidate_PollIntervalMustNotExceedTimeout(t *testing.T) {
	c := validBase()
	c.Dialer.CallTimeout = 2 * time.Second
	c.Dialer.PollInterval = 5 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for poll interval > call timeout")
	}
}

func TestPollIterations(t *testing.T) {
	d := DialerConfig{CallTimeout: 30 * time.Second, PollInterval: 2 * time.Second}
	if got := d.PollIterations(); got != 16 {
		t.Fatalf("expected 16 iterations, got %d", got)
	}

	// Non-divisible timeouts round up.
	d = DialerConfig{CallTimeout: 5 * time.Second, PollInterval: 2 * time.Second}
	if got := d.PollIterations(); got != 4 {
		t.Fatalf("expected 4 iterations, got %d", got)
	}
}
