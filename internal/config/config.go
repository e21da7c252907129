package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ModelConfig holds per-model launch settings.
type ModelConfig struct {
	// ModelPath is the absolute path to the model file.
	ModelPath string `yaml:"model_path"`

	// CustomArgs is a raw, shell-like argument string appended to the
	// server command line. Quoted tokens are respected.
	CustomArgs string `yaml:"custom_args"`

	// Host overrides the global server host for this model.
	Host string `yaml:"host"`

	// Port overrides the global server port for this model.
	Port int `yaml:"port"`

	// Env holds environment variable overrides applied to the server process.
	Env map[string]string `yaml:"env"`
}

// Config defines configuration for the Arandu core.
type Config struct {
	// ModelsDir is the primary directory containing model files.
	ModelsDir string `yaml:"models_dir"`

	// ExtraModelsDirs lists additional directories scanned for models.
	ExtraModelsDirs []string `yaml:"extra_models_dirs"`

	// ExecutableDir is the root directory of server installations.
	// Installed versions live under <ExecutableDir>/versions.
	ExecutableDir string `yaml:"executable_dir"`

	// ActiveExecutableDir is the directory of the currently active server
	// build. May be empty, in which case the newest installed version is
	// located and promoted on first launch.
	ActiveExecutableDir string `yaml:"active_executable_dir"`

	// ActiveExecutableVersion names the active version, for display.
	ActiveExecutableVersion string `yaml:"active_executable_version"`

	// ServerHost is the default bind host for launched servers.
	ServerHost string `yaml:"server_host"`

	// ServerPort is the default port for launched servers.
	ServerPort int `yaml:"server_port"`

	// Models maps a model path to its launch settings.
	Models map[string]ModelConfig `yaml:"models"`

	// path remembers where the config was loaded from, for Save.
	path string
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ServerHost: "127.0.0.1",
		ServerPort: 8080,
		Models:     map[string]ModelConfig{},
	}
}

// LoadFromFile loads configuration from a YAML file.
// Missing fields keep their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.ServerHost == "" {
		cfg.ServerHost = "127.0.0.1"
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8080
	}
	if cfg.Models == nil {
		cfg.Models = map[string]ModelConfig{}
	}
	cfg.path = path

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ARANDU_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ARANDU_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("ARANDU_EXECUTABLE_DIR"); v != "" {
		c.ExecutableDir = v
	}
	if v := os.Getenv("ARANDU_SERVER_HOST"); v != "" {
		c.ServerHost = v
	}
	if v := os.Getenv("ARANDU_SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ARANDU_SERVER_PORT: %w", err)
		}
		c.ServerPort = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ModelsDir == "" {
		return errors.New("config: models_dir is required")
	}
	if c.ExecutableDir == "" {
		return errors.New("config: executable_dir is required")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return errors.New("config: server_port must be in 1..65535")
	}
	return nil
}

// ModelDirs returns every configured model root, primary first.
// Empty entries are skipped.
func (c *Config) ModelDirs() []string {
	dirs := make([]string, 0, 1+len(c.ExtraModelsDirs))
	if c.ModelsDir != "" {
		dirs = append(dirs, c.ModelsDir)
	}
	for _, d := range c.ExtraModelsDirs {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// ModelConfigFor returns the launch settings for a model path, falling
// back to a default entry inheriting the global host and port.
func (c *Config) ModelConfigFor(modelPath string) ModelConfig {
	mc, ok := c.Models[modelPath]
	if !ok {
		mc = ModelConfig{}
	}
	if mc.ModelPath == "" {
		mc.ModelPath = modelPath
	}
	if mc.Host == "" {
		mc.Host = c.ServerHost
	}
	if mc.Port == 0 {
		mc.Port = c.ServerPort
	}
	return mc
}

// SetActiveExecutable records a promoted executable directory and version.
func (c *Config) SetActiveExecutable(dir, version string) {
	c.ActiveExecutableDir = dir
	c.ActiveExecutableVersion = version
}

// Save writes the configuration back to the file it was loaded from,
// or to path if it was never loaded from disk.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return errors.New("config: no path to save to")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	c.path = path
	return nil
}
