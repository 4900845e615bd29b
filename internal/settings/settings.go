// Package settings loads process settings from printcounter.yaml and
// PRINTCOUNTER_* environment variables
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Detector names
const (
	DetectorLibUSB = "libusb"
	DetectorLsusb  = "lsusb"
)

const (
	appName          = "printcounter"
	configFileName   = "printer_config.json"
	historyFileName  = "printcounter.db"
	defaultListen    = "127.0.0.1:12212"
	defaultPoll      = 2 * time.Second
	defaultPrintWait = 5 * time.Second
)

// Settings are the process-level knobs. Printer identity lives in the
// printer config record, not here.
type Settings struct {
	ListenAddr   string
	LogLevel     string
	ConfigPath   string
	HistoryPath  string
	PollInterval time.Duration
	PrintTimeout time.Duration
	Detector     string
}

// Load reads printcounter.yaml from the working directory, the executable's
// directory or the user config directory, then applies environment
// overrides. A missing file is not an error.
func Load() (Settings, error) {
	v := viper.New()
	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if exe, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Dir(exe))
	}
	if dir := userConfigDir(); dir != "" {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	return load(v)
}

// load applies defaults and env overrides to v and decodes the result
func load(v *viper.Viper) (Settings, error) {
	v.SetDefault("listen_addr", defaultListen)
	v.SetDefault("log_level", "info")
	v.SetDefault("config_path", "")
	v.SetDefault("history_path", "")
	v.SetDefault("poll_interval", defaultPoll)
	v.SetDefault("print_timeout", defaultPrintWait)
	v.SetDefault("detector", DetectorLibUSB)

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := Settings{
		ListenAddr:   v.GetString("listen_addr"),
		LogLevel:     v.GetString("log_level"),
		ConfigPath:   v.GetString("config_path"),
		HistoryPath:  v.GetString("history_path"),
		PollInterval: v.GetDuration("poll_interval"),
		PrintTimeout: v.GetDuration("print_timeout"),
		Detector:     strings.ToLower(strings.TrimSpace(v.GetString("detector"))),
	}

	if s.ConfigPath == "" {
		s.ConfigPath = defaultConfigPath()
	}
	if s.HistoryPath == "" {
		s.HistoryPath = filepath.Join(filepath.Dir(s.ConfigPath), historyFileName)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges and enums
func (s Settings) Validate() error {
	if s.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", s.PollInterval)
	}
	if s.PrintTimeout <= 0 {
		return fmt.Errorf("print_timeout must be positive, got %s", s.PrintTimeout)
	}
	switch s.Detector {
	case DetectorLibUSB, DetectorLsusb:
	default:
		return fmt.Errorf("detector must be %q or %q, got %q", DetectorLibUSB, DetectorLsusb, s.Detector)
	}
	return nil
}

// EnsureWritableDir creates dir if needed and checks that files can be
// created in it
func EnsureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+appName+"-write-test-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// defaultConfigPath places the printer record next to the executable when
// that directory is writable, otherwise in the user config directory
func defaultConfigPath() string {
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		if EnsureWritableDir(dir) == nil {
			return filepath.Join(dir, configFileName)
		}
	}

	if dir := userConfigDir(); dir != "" {
		return filepath.Join(dir, configFileName)
	}

	return configFileName
}

func userConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", appName)
	}
	return ""
}
