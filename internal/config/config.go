// Package config manages the persisted printer identity and auto-mode defaults
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when a configuration field is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Built-in defaults, used when no valid record exists.
const (
	DefaultVendorID     = "0x0fe6"
	DefaultProductID    = "0x811e"
	DefaultInterface    = 0
	DefaultAutoMaxCount = 10
	DefaultAutoInterval = 1.0

	maxInterface = 255
)

// Bounds for the auto interval
const (
	MinAutoInterval = time.Millisecond
	MaxAutoInterval = 24 * time.Hour
)

// Config is the persisted printer configuration
type Config struct {
	VendorID     string  `json:"vendor_id"`
	ProductID    string  `json:"product_id"`
	Interface    int     `json:"interface"`
	AutoMaxCount int     `json:"auto_max_count"`
	AutoInterval float64 `json:"auto_interval"`
	SerialDevice string  `json:"serial_device,omitempty"` // empty means USB
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		VendorID:     DefaultVendorID,
		ProductID:    DefaultProductID,
		Interface:    DefaultInterface,
		AutoMaxCount: DefaultAutoMaxCount,
		AutoInterval: DefaultAutoInterval,
	}
}

// Validate checks every field against its allowed range
func (c Config) Validate() error {
	if _, err := parseHexID(c.VendorID); err != nil {
		return fmt.Errorf("%w: vendor_id: %v", ErrInvalidConfig, err)
	}
	if _, err := parseHexID(c.ProductID); err != nil {
		return fmt.Errorf("%w: product_id: %v", ErrInvalidConfig, err)
	}
	if c.Interface < 0 || c.Interface > maxInterface {
		return fmt.Errorf("%w: interface must be between 0 and %d, got %d", ErrInvalidConfig, maxInterface, c.Interface)
	}
	if c.AutoMaxCount <= 0 {
		return fmt.Errorf("%w: auto_max_count must be positive, got %d", ErrInvalidConfig, c.AutoMaxCount)
	}
	if math.IsNaN(c.AutoInterval) || math.IsInf(c.AutoInterval, 0) ||
		c.AutoInterval < MinAutoInterval.Seconds() || c.AutoInterval > MaxAutoInterval.Seconds() {
		return fmt.Errorf("%w: auto_interval must be between %v and %v seconds, got %v",
			ErrInvalidConfig, MinAutoInterval.Seconds(), MaxAutoInterval.Seconds(), c.AutoInterval)
	}
	return nil
}

// ValidateInterval checks an auto interval against MinAutoInterval and
// MaxAutoInterval
func ValidateInterval(d time.Duration) error {
	if d < MinAutoInterval || d > MaxAutoInterval {
		return fmt.Errorf("%w: interval must be between %s and %s, got %s", ErrInvalidConfig, MinAutoInterval, MaxAutoInterval, d)
	}
	return nil
}

// Normalize rewrites the hex ids to their canonical 0x-prefixed form.
// Ids that do not parse are left untouched so Validate can report them.
func (c Config) Normalize() Config {
	if v, err := parseHexID(c.VendorID); err == nil {
		c.VendorID = FormatID(v)
	}
	if v, err := parseHexID(c.ProductID); err == nil {
		c.ProductID = FormatID(v)
	}
	c.SerialDevice = strings.TrimSpace(c.SerialDevice)
	return c
}

// VID returns the numeric vendor id
func (c Config) VID() (uint16, error) {
	return parseHexID(c.VendorID)
}

// PID returns the numeric product id
func (c Config) PID() (uint16, error) {
	return parseHexID(c.ProductID)
}

// Interval returns the auto interval as a duration
func (c Config) Interval() time.Duration {
	return SecondsToDuration(c.AutoInterval)
}

// SameDevice reports whether both configurations address the same printer
func (c Config) SameDevice(other Config) bool {
	a, b := c.Normalize(), other.Normalize()
	return a.VendorID == b.VendorID &&
		a.ProductID == b.ProductID &&
		a.Interface == b.Interface &&
		a.SerialDevice == b.SerialDevice
}

// FormatID renders a 16-bit id the way it is stored, e.g. 0x0fe6
func FormatID(id uint16) string {
	return fmt.Sprintf("0x%04x", id)
}

// SecondsToDuration converts a fractional number of seconds, saturating at
// the limits of time.Duration
func SecondsToDuration(seconds float64) time.Duration {
	ns := seconds * float64(time.Second)
	switch {
	case math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}

func parseHexID(s string) (uint16, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, errors.New("empty id")
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%q is not a 16-bit hex id", s)
	}
	return uint16(v), nil
}
