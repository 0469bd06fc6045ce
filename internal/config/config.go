package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"ultraseeker/internal/model"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Modalities ModalitiesConfig `json:"modalities" yaml:"modalities"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Health     HealthConfig     `json:"health" yaml:"health"`
	History    HistoryConfig    `json:"history" yaml:"history"`
}

type EngineConfig struct {
	Cadence            time.Duration `json:"cadence" yaml:"cadence"`
	SummaryWindow      time.Duration `json:"summary_window" yaml:"summary_window"`
	LedgerCapacity     int           `json:"ledger_capacity" yaml:"ledger_capacity"`
	Sensitivity        float64       `json:"sensitivity" yaml:"sensitivity"`
	DedupeWindow       time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	EscalationCooldown time.Duration `json:"escalation_cooldown" yaml:"escalation_cooldown"`
}

type ClassifierConfig struct {
	WeaponClasses      []string           `json:"weapon_classes" yaml:"weapon_classes"`
	AggressiveClasses  []string           `json:"aggressive_classes" yaml:"aggressive_classes"`
	GroupClasses       []string           `json:"group_classes" yaml:"group_classes"`
	DefaultThreshold   float64            `json:"default_threshold" yaml:"default_threshold"`
	CategoryThresholds map[string]float64 `json:"category_thresholds" yaml:"category_thresholds"`
}

type ModalitiesConfig struct {
	Vision   ModalityConfig `json:"vision" yaml:"vision"`
	Audio    ModalityConfig `json:"audio" yaml:"audio"`
	Behavior ModalityConfig `json:"behavior" yaml:"behavior"`
}

type ModalityConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	WindowCapacity int           `json:"window_capacity" yaml:"window_capacity"`
	MinReady       int           `json:"min_ready" yaml:"min_ready"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

func (m ModalitiesConfig) For(modality model.Modality) (ModalityConfig, bool) {
	switch modality {
	case model.ModalityVision:
		return m.Vision, true
	case model.ModalityAudio:
		return m.Audio, true
	case model.ModalityBehavior:
		return m.Behavior, true
	}
	return ModalityConfig{}, false
}

func (m ModalitiesConfig) Enabled() []model.Modality {
	out := make([]model.Modality, 0, 3)
	if m.Vision.Enabled {
		out = append(out, model.ModalityVision)
	}
	if m.Audio.Enabled {
		out = append(out, model.ModalityAudio)
	}
	if m.Behavior.Enabled {
		out = append(out, model.ModalityBehavior)
	}
	return out
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type ParserConfig struct {
	Timezone        string `json:"timezone" yaml:"timezone"`
	DefaultModality string `json:"default_modality" yaml:"default_modality"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type HealthConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type HistoryConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Engine: EngineConfig{
			Cadence:            100 * time.Millisecond,
			SummaryWindow:      30 * time.Second,
			LedgerCapacity:     1000,
			Sensitivity:        0.5,
			DedupeWindow:       1 * time.Second,
			EscalationCooldown: 5 * time.Second,
		},
		Classifier: ClassifierConfig{
			WeaponClasses:     []string{"weapon_firearm", "weapon_knife"},
			AggressiveClasses: []string{"aggressive_gesture"},
			GroupClasses:      []string{"group_formation"},
			DefaultThreshold:  0.7,
			CategoryThresholds: map[string]float64{
				"weapon_firearm": 0.8,
				"weapon_knife":   0.8,
			},
		},
		Modalities: ModalitiesConfig{
			Vision:   ModalityConfig{Enabled: true, WindowCapacity: 30, MinReady: 5, Timeout: 250 * time.Millisecond},
			Audio:    ModalityConfig{Enabled: true, WindowCapacity: 100, MinReady: 5, Timeout: 250 * time.Millisecond},
			Behavior: ModalityConfig{Enabled: true, WindowCapacity: 30, MinReady: 5, Timeout: 250 * time.Millisecond},
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Parser:        ParserConfig{Timezone: "UTC", DefaultModality: "vision"},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:ultraseeker.db?_pragma=busy_timeout(5000)"},
		Health:  HealthConfig{StoreLimit: 100},
		History: HistoryConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.SummaryWindow <= 0 {
		cfg.Engine.SummaryWindow = 30 * time.Second
	}
	if cfg.Engine.LedgerCapacity <= 0 {
		cfg.Engine.LedgerCapacity = 1000
	}
	if cfg.Classifier.DefaultThreshold <= 0 {
		cfg.Classifier.DefaultThreshold = 0.7
	}
	if cfg.Health.StoreLimit <= 0 {
		cfg.Health.StoreLimit = 100
	}
	if cfg.History.StoreLimit <= 0 {
		cfg.History.StoreLimit = 1000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultModality == "" {
		cfg.Ingest.Parser.DefaultModality = "vision"
	}
	for _, mc := range []*ModalityConfig{&cfg.Modalities.Vision, &cfg.Modalities.Audio, &cfg.Modalities.Behavior} {
		if mc.WindowCapacity <= 0 {
			mc.WindowCapacity = 30
		}
		if mc.MinReady <= 0 {
			mc.MinReady = 5
		}
	}
}

// Validate rejects a configuration the engine must not start with.
func Validate(cfg *Config) error {
	if cfg.Engine.Cadence <= 0 {
		return errors.New("engine.cadence must be > 0")
	}
	if cfg.Engine.SummaryWindow <= 0 {
		return errors.New("engine.summary_window must be > 0")
	}
	if cfg.Engine.LedgerCapacity <= 0 {
		return errors.New("engine.ledger_capacity must be > 0")
	}
	if cfg.Engine.Sensitivity < 0 || cfg.Engine.Sensitivity > 1 {
		return errors.New("engine.sensitivity must be in [0,1]")
	}
	if cfg.Engine.DedupeWindow < 0 {
		return errors.New("engine.dedupe_window must be >= 0")
	}
	if cfg.Classifier.DefaultThreshold <= 0 || cfg.Classifier.DefaultThreshold > 1 {
		return errors.New("classifier.default_threshold must be in (0,1]")
	}
	for category, threshold := range cfg.Classifier.CategoryThresholds {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("classifier.category_thresholds[%s] must be in (0,1]", category)
		}
	}
	if len(cfg.Modalities.Enabled()) == 0 {
		return errors.New("modalities: at least one modality must be enabled")
	}
	for _, check := range []struct {
		name string
		mc   ModalityConfig
	}{
		{"vision", cfg.Modalities.Vision},
		{"audio", cfg.Modalities.Audio},
		{"behavior", cfg.Modalities.Behavior},
	} {
		if check.mc.WindowCapacity <= 0 {
			return fmt.Errorf("modalities.%s.window_capacity must be > 0", check.name)
		}
		if check.mc.MinReady <= 0 {
			return fmt.Errorf("modalities.%s.min_ready must be > 0", check.name)
		}
		if check.mc.Timeout < 0 {
			return fmt.Errorf("modalities.%s.timeout must be >= 0", check.name)
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver unsupported: %q", cfg.Storage.Driver)
		}
	}
	if _, err := model.ParseModality(cfg.Ingest.Parser.DefaultModality); err != nil {
		return fmt.Errorf("ingest.parser.default_modality: %w", err)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an already validated config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
