// Package config loads and merges cloudwarden's YAML configuration:
// the embedded base configuration first, then each -c file in order,
// deep-merged with later files winning (spec.md §6).
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/cloudwarden/cloudwarden/internal/merge"
	"github.com/cloudwarden/cloudwarden/internal/notify"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"gopkg.in/yaml.v3"
)

//go:embed baseconfig.yaml
var baseConfigYAML []byte

// BaseConfigYAML returns the embedded base configuration verbatim, for
// -p/--print-base-config.
func BaseConfigYAML() []byte {
	return baseConfigYAML
}

// AuditConfig is one entry of the `audits` map: the plugin keys wired
// into each role.
type AuditConfig struct {
	Clouds []string `yaml:"clouds"`
	Events []string `yaml:"events"`
	Stores []string `yaml:"stores"`
	Alerts []string `yaml:"alerts"`
}

// LoggerConfig is the `logger` key, passed through to internal/logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EmailConfig is the optional `email` key, passed through to
// internal/notify.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Mode     string   `yaml:"mode"`
}

// MetricsConfig is the optional `metrics` key.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the fully merged, decoded configuration.
type Config struct {
	Plugins  map[string]pluginloader.Descriptor `yaml:"plugins"`
	Audits   map[string]AuditConfig             `yaml:"audits"`
	Run      []string                           `yaml:"run"`
	Schedule string                             `yaml:"schedule"`
	Logger   LoggerConfig                       `yaml:"logger"`
	Email    *EmailConfig                       `yaml:"email"`
	Metrics  MetricsConfig                      `yaml:"metrics"`
}

// NotifyConfig converts the `email` key to notify.Config. Mode defaults
// to ssl; an unset Email yields a Host-less (disabled) notify.Config.
func (c *Config) NotifyConfig() notify.Config {
	if c.Email == nil {
		return notify.Config{Mode: notify.ModeDisable}
	}
	return notify.Config{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
		To:       c.Email.To,
		Mode:     notify.Mode(c.Email.Mode),
	}
}

// Load reads the embedded base configuration, then each path in order
// (missing paths are ignored, matching spec.md §6), deep-merging each on
// top of the accumulated result, and decodes the merge into a Config.
func Load(paths []string) (*Config, error) {
	merged, err := decodeToMap(baseConfigYAML)
	if err != nil {
		return nil, fmt.Errorf("config: base config: %w", err)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		layer, err := decodeToMap(data)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		merged = merge.Maps(merged, layer)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal merged config: %w", err)
	}
	out = []byte(os.Expand(string(out), lookupEnv))

	var cfg Config
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode merged config: %w", err)
	}
	return &cfg, nil
}

// lookupEnv backs the ${VAR} placeholder expansion of the merged config
// (plugin credential params per spec.md §4.2). An unset variable expands
// to the empty string, matching os.ExpandEnv's convention.
func lookupEnv(name string) string {
	return os.Getenv(name)
}

func decodeToMap(data []byte) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if len(data) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
