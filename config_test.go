package goRenew

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
		wantErr   string
	}{
		{
			name:      "defaults with keys valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "access ttl zero",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantErr: "AccessTTL",
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = 30 * time.Minute
			},
			wantErr: "RefreshTTL must be >= AccessTTL",
		},
		{
			name: "hs256 valid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "HS256"
				c.JWT.PublicKey = nil
			},
			wantValid: true,
		},
		{
			name: "hs256 without secret",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = nil
			},
			wantErr: "hs256 requires PrivateKey",
		},
		{
			name: "ed25519 without public key",
			mutate: func(c *Config) {
				c.JWT.PublicKey = nil
			},
			wantErr: "ed25519 requires PublicKey",
		},
		{
			name: "unsupported signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantErr: "unsupported JWT signing method",
		},
		{
			name: "sliding window zero",
			mutate: func(c *Config) {
				c.Store.SlidingWindow = 0
			},
			wantErr: "SlidingWindow",
		},
		{
			name: "jitter enabled without range",
			mutate: func(c *Config) {
				c.Store.JitterEnabled = true
			},
			wantErr: "JitterRange must be > 0",
		},
		{
			name: "jitter wider than window",
			mutate: func(c *Config) {
				c.Store.JitterEnabled = true
				c.Store.JitterRange = 8 * 24 * time.Hour
			},
			wantErr: "JitterRange must be < SlidingWindow",
		},
		{
			name: "jitter within window",
			mutate: func(c *Config) {
				c.Store.JitterEnabled = true
				c.Store.JitterRange = time.Hour
			},
			wantValid: true,
		},
		{
			name: "freshness threshold zero",
			mutate: func(c *Config) {
				c.Renewal.FreshnessThreshold = 0
			},
			wantErr: "FreshnessThreshold must be > 0",
		},
		{
			name: "freshness threshold not below access ttl",
			mutate: func(c *Config) {
				c.Renewal.FreshnessThreshold = time.Hour
			},
			wantErr: "FreshnessThreshold must be < JWT AccessTTL",
		},
		{
			name: "negative grace",
			mutate: func(c *Config) {
				c.Renewal.MaxExpiredGrace = -time.Second
			},
			wantErr: "MaxExpiredGrace",
		},
		{
			name: "unbounded grace",
			mutate: func(c *Config) {
				c.Renewal.MaxExpiredGrace = 0
			},
			wantValid: true,
		},
		{
			name: "negative store timeout",
			mutate: func(c *Config) {
				c.Renewal.StoreTimeout = -time.Millisecond
			},
			wantErr: "StoreTimeout",
		},
		{
			name: "throttle without attempts",
			mutate: func(c *Config) {
				c.Refresh.MaxAttempts = 0
			},
			wantErr: "MaxAttempts",
		},
		{
			name: "throttle disabled ignores limits",
			mutate: func(c *Config) {
				c.Refresh.EnableThrottle = false
				c.Refresh.MaxAttempts = 0
				c.Refresh.Cooldown = 0
			},
			wantValid: true,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantErr: "BufferSize",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.JWT.AccessTTL != time.Hour || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token lifetimes %v/%v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Store.SlidingWindow != 7*24*time.Hour || cfg.Store.RedisPrefix != "cr" {
		t.Fatalf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Renewal.FreshnessThreshold != 10*time.Minute {
		t.Fatalf("unexpected freshness threshold %v", cfg.Renewal.FreshnessThreshold)
	}
	if cfg.Renewal.ConditionalWrite {
		t.Fatal("conditional write must be opt-in")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without keys must not validate")
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig(t)
	clone := cloneConfig(cfg)

	clone.JWT.PrivateKey[0] ^= 0xff
	if cfg.JWT.PrivateKey[0] == clone.JWT.PrivateKey[0] {
		t.Fatal("clone shares key material with the source")
	}
}
