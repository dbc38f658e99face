package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 6970
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
	DefaultHost           = "127.0.0.1"

	DefaultUpstreamBaseURL = "https://api.anthropic.com"
	DefaultAuthStyle       = "x-api-key"
)

// UpstreamConfig describes the single upstream this gateway forwards
// canonical requests to.
type UpstreamConfig struct {
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AuthStyle string `json:"auth_style,omitempty" yaml:"auth_style,omitempty"`
	// Transport selects the upstream wire shape: "chat" (default) speaks the
	// normal CreateMessageParams body; "web" flattens the request through
	// internal/webstate first, for upstreams that only accept a single
	// merged prompt string instead of a structured messages array.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`
}

const TransportWeb = "web"

// GatewayConfig carries the dialect-translation knobs that have no upstream
// equivalent: web-ingress serialization overrides and debug tooling.
type GatewayConfig struct {
	WebSearch    bool   `json:"web_search,omitempty" yaml:"web_search,omitempty"`
	CustomH      string `json:"custom_h,omitempty" yaml:"custom_h,omitempty"`
	CustomA      string `json:"custom_a,omitempty" yaml:"custom_a,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty" yaml:"custom_prompt,omitempty"`
	CustomSystem string `json:"custom_system,omitempty" yaml:"custom_system,omitempty"`
	UseRealRoles bool   `json:"use_real_roles,omitempty" yaml:"use_real_roles,omitempty"`
	DebugLogDir  string `json:"debug_log_dir,omitempty" yaml:"debug_log_dir,omitempty"`
}

type Config struct {
	Host     string         `json:"HOST,omitempty" yaml:"host,omitempty"`
	Port     int            `json:"PORT,omitempty" yaml:"port,omitempty"`
	APIKey   string         `json:"APIKEY,omitempty" yaml:"api_key,omitempty"`
	Upstream UpstreamConfig `json:"Upstream" yaml:"upstream"`
	Gateway  GatewayConfig  `json:"Gateway" yaml:"gateway"`
}

type Manager struct {
	baseDir     string
	jsonPath    string
	yamlPath    string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:  baseDir,
		jsonPath: filepath.Join(baseDir, DefaultConfigFilename),
		yamlPath: filepath.Join(baseDir, DefaultYAMLFilename),
	}
}

// createMinimalConfig builds a runnable config from WIREGATE_UPSTREAM_KEY
// alone, for first-run convenience.
func (m *Manager) createMinimalConfig() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Upstream: UpstreamConfig{
			BaseURL:   DefaultUpstreamBaseURL,
			APIKey:    os.Getenv("WIREGATE_UPSTREAM_KEY"),
			AuthStyle: DefaultAuthStyle,
		},
	}
}

func (m *Manager) Load() (*Config, error) {
	var cfg Config
	var err error

	upstreamKey := os.Getenv("WIREGATE_UPSTREAM_KEY")

	if _, yamlErr := os.Stat(m.yamlPath); yamlErr == nil {
		cfg, err = m.loadYAML()
		if err != nil {
			return nil, fmt.Errorf("load YAML config: %w", err)
		}
	} else if _, jsonErr := os.Stat(m.jsonPath); jsonErr == nil {
		cfg, err = m.loadJSON()
		if err != nil {
			return nil, fmt.Errorf("load JSON config: %w", err)
		}
	} else if upstreamKey != "" {
		cfg = m.createMinimalConfig()
	} else {
		return nil, fmt.Errorf("no configuration file found (looked for %s or %s) and WIREGATE_UPSTREAM_KEY environment variable not set", m.yamlPath, m.jsonPath)
	}

	if err := m.applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) loadYAML() (Config, error) {
	var cfg Config

	data, err := os.ReadFile(m.yamlPath)
	if err != nil {
		return cfg, fmt.Errorf("read YAML config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal YAML config: %w", err)
	}

	return cfg, nil
}

func (m *Manager) loadJSON() (Config, error) {
	var cfg Config

	data, err := os.ReadFile(m.jsonPath)
	if err != nil {
		return cfg, fmt.Errorf("read JSON config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal JSON config: %w", err)
	}

	return cfg, nil
}

func (m *Manager) applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.AuthStyle == "" {
		cfg.Upstream.AuthStyle = DefaultAuthStyle
	}
	return nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		return &Config{
			Host:     DefaultHost,
			Port:     DefaultPort,
			Upstream: UpstreamConfig{BaseURL: DefaultUpstreamBaseURL, AuthStyle: DefaultAuthStyle},
		}
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal YAML config: %w", err)
	}

	if err := os.WriteFile(m.yamlPath, data, 0644); err != nil {
		return fmt.Errorf("write YAML config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) SaveAsYAML(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal YAML config: %w", err)
	}

	if err := os.WriteFile(m.yamlPath, data, 0644); err != nil {
		return fmt.Errorf("write YAML config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) SaveAsJSON(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON config: %w", err)
	}

	if err := os.WriteFile(m.jsonPath, data, 0644); err != nil {
		return fmt.Errorf("write JSON config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) GetPath() string {
	if _, err := os.Stat(m.yamlPath); err == nil {
		return m.yamlPath
	}
	return m.jsonPath
}

func (m *Manager) GetYAMLPath() string {
	return m.yamlPath
}

func (m *Manager) GetJSONPath() string {
	return m.jsonPath
}

func (m *Manager) Exists() bool {
	_, yamlErr := os.Stat(m.yamlPath)
	_, jsonErr := os.Stat(m.jsonPath)
	return yamlErr == nil || jsonErr == nil
}

func (m *Manager) HasYAML() bool {
	_, err := os.Stat(m.yamlPath)
	return err == nil
}

func (m *Manager) HasJSON() bool {
	_, err := os.Stat(m.jsonPath)
	return err == nil
}

// CreateExampleYAML writes a fully-commented example configuration to disk.
func (m *Manager) CreateExampleYAML() error {
	cfg := &Config{
		Host:   DefaultHost,
		Port:   DefaultPort,
		APIKey: "your-gateway-api-key-here",
		Upstream: UpstreamConfig{
			BaseURL:   DefaultUpstreamBaseURL,
			APIKey:    "your-upstream-api-key-here",
			AuthStyle: DefaultAuthStyle,
		},
		Gateway: GatewayConfig{
			WebSearch:    true,
			UseRealRoles: false,
		},
	}

	if err := m.applyDefaults(cfg); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}

	return m.SaveAsYAML(cfg)
}
