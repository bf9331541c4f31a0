/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	config.go: JSON config document with typed sections and reload snapshots
*/
package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// DefaultRFIDHosts are probed in order before falling back to ARP discovery.
var DefaultRFIDHosts = []string{"169.254.10.1", "169.254.1.1"}

type GPSConfig struct {
	UseExternal   bool `mapstructure:"use_external" json:"use_external"`
	BaudRate      int  `mapstructure:"baud_rate" json:"baud_rate"`
	ProbeBaudRate int  `mapstructure:"probe_baud_rate" json:"probe_baud_rate"`
}

type RFIDConfig struct {
	Host             string `mapstructure:"host" json:"host"`
	Port             int    `mapstructure:"port" json:"port"`
	ReportEveryNTags int    `mapstructure:"report_every_n_tags" json:"report_every_n_tags"`
	Antennas         string `mapstructure:"antennas" json:"antennas"`
	TxPower          int    `mapstructure:"tx_power" json:"tx_power"`
	Tari             int    `mapstructure:"tari" json:"tari"`
	Session          int    `mapstructure:"session" json:"session"`
	TagPopulation    int    `mapstructure:"tag_population" json:"tag_population"`
}

type APIConfig struct {
	LoginURL         string `mapstructure:"login_url" json:"login_url"`
	HealthURL        string `mapstructure:"health_url" json:"health_url"`
	Auth0URL         string `mapstructure:"auth0_url" json:"auth0_url"`
	RecordURL        string `mapstructure:"record_url" json:"record_url"`
	ClientID         string `mapstructure:"client_id" json:"client_id"`
	ClientSecret     string `mapstructure:"client_secret" json:"client_secret"`
	Audience         string `mapstructure:"audience" json:"audience"`
	UserName         string `mapstructure:"user_name" json:"user_name"`
	SpotterID        string `mapstructure:"spotter_id" json:"spotter_id"`
	SiteID           string `mapstructure:"site_id" json:"site_id"`
	RecordIntervalMS int    `mapstructure:"record_interval_ms" json:"record_interval_ms"`
	HealthIntervalMS int    `mapstructure:"health_interval_ms" json:"health_interval_ms"`
	MaxUploadRecords int    `mapstructure:"max_upload_records" json:"max_upload_records"`
}

type DatabaseConfig struct {
	UseDB                     bool `mapstructure:"use_db" json:"use_db"`
	MaxRecords                int  `mapstructure:"max_records" json:"max_records"`
	DuplicateDetectionSeconds int  `mapstructure:"duplicate_detection_seconds" json:"duplicate_detection_seconds"`
}

type FilterRange struct {
	Enabled bool    `mapstructure:"enabled" json:"enabled"`
	Min     float64 `mapstructure:"min" json:"min"`
	Max     float64 `mapstructure:"max" json:"max"`
}

type FilterConfig struct {
	Speed    FilterRange `mapstructure:"speed" json:"speed"`
	RSSI     FilterRange `mapstructure:"rssi" json:"rssi"`
	TagRange FilterRange `mapstructure:"tag_range" json:"tag_range"`
}

// Config is the whole document. Sections are plain values; consumers receive
// copies via Snapshot and re-read after a reload notification instead of
// sharing mutable references.
type Config struct {
	GPS               GPSConfig      `mapstructure:"gps_config" json:"gps_config"`
	RFID              RFIDConfig     `mapstructure:"rfid_config" json:"rfid_config"`
	API               APIConfig      `mapstructure:"api_config" json:"api_config"`
	Database          DatabaseConfig `mapstructure:"database_config" json:"database_config"`
	Filter            FilterConfig   `mapstructure:"filter_config" json:"filter_config"`
	BaudRateDon       int            `mapstructure:"baud_rate_don" json:"baud_rate_don"`
	InternetLimitTime int            `mapstructure:"internet_limit_time" json:"internet_limit_time"`
}

// Snapshot is a version-stamped copy of the document. Version increases on
// every successful Reload, so pollers can cheaply detect change.
type Snapshot struct {
	Version uint64
	Config
}

// ConfigStore owns the on-disk document. Partial files are safe: viper merges
// the file over the built-in defaults key by key.
type ConfigStore struct {
	mu        sync.RWMutex
	v         *viper.Viper
	path      string
	version   uint64
	current   Config
	callbacks []func(Snapshot)
}

// DataDir returns the per-user state directory, honoring SUDO_USER so running
// under sudo still uses the invoking user's home.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if su := os.Getenv("SUDO_USER"); su != "" && IsRunningAsRoot() {
		home = filepath.Join("/home", su)
	}
	return filepath.Join(home, ".tagspot")
}

func DefaultConfigPath() string   { return filepath.Join(DataDir(), "config.json") }
func DefaultDatabasePath() string { return filepath.Join(DataDir(), "database.db") }

func defaultViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("gps_config.use_external", true)
	v.SetDefault("gps_config.baud_rate", 115200)
	v.SetDefault("gps_config.probe_baud_rate", 115200)

	v.SetDefault("rfid_config.host", "169.254.10.1")
	v.SetDefault("rfid_config.port", 5084)
	v.SetDefault("rfid_config.report_every_n_tags", 1)
	v.SetDefault("rfid_config.antennas", "1")
	v.SetDefault("rfid_config.tx_power", 0)
	v.SetDefault("rfid_config.tari", 0)
	v.SetDefault("rfid_config.session", 1)
	v.SetDefault("rfid_config.tag_population", 4)

	v.SetDefault("api_config.login_url", "")
	v.SetDefault("api_config.health_url", "")
	v.SetDefault("api_config.auth0_url", "")
	v.SetDefault("api_config.record_url", "")
	v.SetDefault("api_config.client_id", "")
	v.SetDefault("api_config.client_secret", "")
	v.SetDefault("api_config.audience", "")
	v.SetDefault("api_config.user_name", "TagspotUser")
	v.SetDefault("api_config.spotter_id", "120")
	v.SetDefault("api_config.site_id", "")
	v.SetDefault("api_config.record_interval_ms", 7000)
	v.SetDefault("api_config.health_interval_ms", 15000)
	v.SetDefault("api_config.max_upload_records", 10)

	v.SetDefault("database_config.use_db", true)
	v.SetDefault("database_config.max_records", 100)
	v.SetDefault("database_config.duplicate_detection_seconds", 3)

	v.SetDefault("filter_config.speed.enabled", true)
	v.SetDefault("filter_config.speed.min", 1)
	v.SetDefault("filter_config.speed.max", 20)
	v.SetDefault("filter_config.rssi.enabled", false)
	v.SetDefault("filter_config.rssi.min", -80)
	v.SetDefault("filter_config.rssi.max", 0)
	v.SetDefault("filter_config.tag_range.enabled", false)
	v.SetDefault("filter_config.tag_range.min", 0)
	v.SetDefault("filter_config.tag_range.max", 999999999)

	v.SetDefault("baud_rate_don", 9600)
	v.SetDefault("internet_limit_time", 5)

	return v
}

// NewConfigStore loads the document at path, creating it with defaults when
// absent and regenerating it when unreadable. A malformed file never blocks
// startup.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	s := &ConfigStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConfigStore) load() error {
	v := defaultViper(s.path)

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		Log().Infow("config file missing, writing defaults", "path", s.path)
	} else if err := v.ReadInConfig(); err != nil {
		Log().Warnw("config file unreadable, regenerating defaults", "path", s.path, "error", err)
		v = defaultViper(s.path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	s.mu.Lock()
	s.v = v
	s.current = cfg
	s.version++
	s.mu.Unlock()

	return s.writeFile(cfg)
}

func (s *ConfigStore) writeFile(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Snapshot returns a version-stamped copy of the current document.
func (s *ConfigStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Version: s.version, Config: s.current}
}

func (s *ConfigStore) Path() string { return s.path }

// OnReload registers a callback invoked after every successful Reload with
// the fresh snapshot. Callbacks run on the reloader's goroutine.
func (s *ConfigStore) OnReload(fn func(Snapshot)) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// Reload re-reads the file from disk and notifies subscribers.
func (s *ConfigStore) Reload() error {
	if err := s.load(); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *ConfigStore) notify() {
	snap := s.Snapshot()
	s.mu.RLock()
	cbs := append([]func(Snapshot){}, s.callbacks...)
	s.mu.RUnlock()
	for _, fn := range cbs {
		fn(snap)
	}
}

// Update applies fn to a copy of the current document, persists the whole
// document, and notifies subscribers.
func (s *ConfigStore) Update(fn func(*Config)) error {
	s.mu.Lock()
	cfg := s.current
	fn(&cfg)
	s.current = cfg
	s.version++
	s.mu.Unlock()

	if err := s.writeFile(cfg); err != nil {
		return err
	}
	s.notify()
	return nil
}

// SetRFIDHost persists a newly discovered reader address.
func (s *ConfigStore) SetRFIDHost(host string) error {
	return s.Update(func(c *Config) { c.RFID.Host = host })
}
