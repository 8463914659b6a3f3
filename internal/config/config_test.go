package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is all",
			check:  func(c *Config) bool { return c.Mode == "all" },
			expect: "all",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default window is 14 days",
			check:  func(c *Config) bool { return c.WindowDays == 14 },
			expect: "14",
		},
		{
			name:   "default time slots parsed",
			check:  func(c *Config) bool { return len(c.TimeSlots) == 5 },
			expect: "5 slots",
		},
		{
			name:   "default party sizes parsed",
			check:  func(c *Config) bool { return len(c.PartySizes) == 2 && c.PartySizes[0] == 2 },
			expect: "[2 4]",
		},
		{
			name:   "default max concurrent buckets",
			check:  func(c *Config) bool { return c.MaxConcurrentBuckets == 8 },
			expect: "8",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestValidate_RejectsBadWindow(t *testing.T) {
	cfg := &Config{
		Mode:                 "worker",
		DatabaseURL:          "postgres://x",
		WindowDays:           0,
		TimeSlots:            []string{"19:00"},
		PartySizes:           []int{2},
		MaxConcurrentBuckets: 1,
		ProviderTimeout:      "1s",
		TickInterval:         "1s",
		BucketCooldown:       "1s",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero WindowDays")
	}
}

func TestValidate_RejectsBadTimeSlot(t *testing.T) {
	cfg := &Config{
		Mode:                 "worker",
		DatabaseURL:          "postgres://x",
		WindowDays:           14,
		TimeSlots:            []string{"not-a-time"},
		PartySizes:           []int{2},
		MaxConcurrentBuckets: 1,
		ProviderTimeout:      "1s",
		TickInterval:         "1s",
		BucketCooldown:       "1s",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed time slot")
	}
}

func TestValidate_RejectsUnknownMode(t *testing.T) {
	cfg := &Config{
		Mode:                 "bogus",
		DatabaseURL:          "postgres://x",
		WindowDays:           14,
		TimeSlots:            []string{"19:00"},
		PartySizes:           []int{2},
		MaxConcurrentBuckets: 1,
		ProviderTimeout:      "1s",
		TickInterval:         "1s",
		BucketCooldown:       "1s",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{NotifiedDedupeMinutes: 30, StaleBucketHours: 4}
	if cfg.NotifiedDedupeTTL().Minutes() != 30 {
		t.Errorf("NotifiedDedupeTTL() = %v, want 30m", cfg.NotifiedDedupeTTL())
	}
	if cfg.StaleBucketThreshold().Hours() != 4 {
		t.Errorf("StaleBucketThreshold() = %v, want 4h", cfg.StaleBucketThreshold())
	}
}
