package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "printer_config.json"), nil)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	store := newTestStore(t)

	cfg := store.Load()
	if cfg != Defaults() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoad_CorruptFileReturnsDefaults(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cfg := store.Load()
	if cfg != Defaults() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoad_OutOfRangeReturnsDefaults(t *testing.T) {
	store := newTestStore(t)
	data := `{"vendor_id":"0x0fe6","product_id":"0x811e","interface":0,"auto_max_count":3,"auto_interval":-1}`
	if err := os.WriteFile(store.Path(), []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cfg := store.Load()
	if cfg != Defaults() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoad_MissingKeysMergedWithDefaults(t *testing.T) {
	store := newTestStore(t)
	data := `{"vendor_id":"04b8","product_id":"0E15"}`
	if err := os.WriteFile(store.Path(), []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cfg := store.Load()
	if cfg.VendorID != "0x04b8" {
		t.Errorf("Expected vendor 0x04b8, got %s", cfg.VendorID)
	}
	if cfg.ProductID != "0x0e15" {
		t.Errorf("Expected product 0x0e15, got %s", cfg.ProductID)
	}
	if cfg.AutoMaxCount != DefaultAutoMaxCount {
		t.Errorf("Expected default max count, got %d", cfg.AutoMaxCount)
	}
	if cfg.AutoInterval != DefaultAutoInterval {
		t.Errorf("Expected default interval, got %v", cfg.AutoInterval)
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	want := Config{
		VendorID:     "0x0fe6",
		ProductID:    "0x811e",
		Interface:    0,
		AutoMaxCount: 3,
		AutoInterval: 0.1,
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	// New store instance, simulating app restart
	got := NewStore(store.Path(), nil).Load()
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestSave_InvalidKeepsPreviousRecord(t *testing.T) {
	store := newTestStore(t)

	good := Defaults()
	good.AutoMaxCount = 7
	if err := store.Save(good); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	for _, interval := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		bad := good
		bad.AutoInterval = interval
		err := store.Save(bad)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("interval %v: expected ErrInvalidConfig, got %v", interval, err)
		}
	}

	if got := store.Load(); got != good {
		t.Errorf("Expected previous record %+v, got %+v", good, got)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the record in the directory, found %d entries", len(entries))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bare hex ids", func(c *Config) { c.VendorID = "0fe6"; c.ProductID = "811E" }, true},
		{"vendor not hex", func(c *Config) { c.VendorID = "0xzzzz" }, false},
		{"vendor too wide", func(c *Config) { c.VendorID = "0x10000" }, false},
		{"product empty", func(c *Config) { c.ProductID = "" }, false},
		{"negative interface", func(c *Config) { c.Interface = -1 }, false},
		{"interface too large", func(c *Config) { c.Interface = 256 }, false},
		{"zero max count", func(c *Config) { c.AutoMaxCount = 0 }, false},
		{"zero interval", func(c *Config) { c.AutoInterval = 0 }, false},
		{"tiny interval", func(c *Config) { c.AutoInterval = 0.01 }, true},
		{"shortest interval", func(c *Config) { c.AutoInterval = 0.001 }, true},
		{"interval under a millisecond", func(c *Config) { c.AutoInterval = 1e-10 }, false},
		{"longest interval", func(c *Config) { c.AutoInterval = 86400 }, true},
		{"interval over a day", func(c *Config) { c.AutoInterval = 86401 }, false},
		{"huge interval", func(c *Config) { c.AutoInterval = 1e10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSameDevice(t *testing.T) {
	a := Defaults()
	b := Defaults()
	b.VendorID = "0FE6"
	b.AutoMaxCount = 99
	if !a.SameDevice(b) {
		t.Error("Expected same device when only auto fields differ")
	}

	b.Interface = 1
	if a.SameDevice(b) {
		t.Error("Expected different device when interface differs")
	}
}

func TestIDs(t *testing.T) {
	cfg := Defaults()

	vid, err := cfg.VID()
	if err != nil || vid != 0x0fe6 {
		t.Errorf("Expected VID 0x0FE6, got 0x%04X (%v)", vid, err)
	}
	pid, err := cfg.PID()
	if err != nil || pid != 0x811e {
		t.Errorf("Expected PID 0x811E, got 0x%04X (%v)", pid, err)
	}
}

func TestSecondsToDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{1.5, 1500 * time.Millisecond},
		{0.001, time.Millisecond},
		{1e10, math.MaxInt64},
		{-1e10, math.MinInt64},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		if got := SecondsToDuration(tt.seconds); got != tt.want {
			t.Errorf("SecondsToDuration(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestValidateInterval(t *testing.T) {
	for _, d := range []time.Duration{MinAutoInterval, time.Second, MaxAutoInterval} {
		if err := ValidateInterval(d); err != nil {
			t.Errorf("ValidateInterval(%v): unexpected error %v", d, err)
		}
	}
	for _, d := range []time.Duration{0, -time.Second, time.Microsecond, MaxAutoInterval + time.Second, math.MaxInt64} {
		if err := ValidateInterval(d); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ValidateInterval(%v): expected ErrInvalidConfig, got %v", d, err)
		}
	}
}
