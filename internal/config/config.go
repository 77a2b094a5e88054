package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = "8080"
	DefaultModelPath       = "models/model.onnx"
	DefaultMetadataPath    = "models/model_metadata.json"
	DefaultImageSize       = 96
	DefaultUserServiceURL  = "http://127.0.0.1:8000/user-service/"
	DefaultAuthScheme      = "Token"
	DefaultUserServiceWait = 10 * time.Second
	DefaultMaxUploadBytes  = 10 << 20
)

// Config is the process configuration, read once at start-up.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// AllowedOrigin is sent as Access-Control-Allow-Origin.
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`

	Model ModelConfig `yaml:"model"`

	UserService UserServiceConfig `yaml:"user_service"`

	Upload struct {
		MaxBytes int64 `yaml:"max_bytes"`
	} `yaml:"upload"`
}

// ModelConfig selects the classifier artifact. Which exported variant is
// served is purely a deployment choice.
type ModelConfig struct {
	Path          string `yaml:"path"`
	MetadataPath  string `yaml:"metadata_path"`
	SharedLibrary string `yaml:"shared_library"`
	ImageSize     int    `yaml:"image_size"`
	ApplySoftmax  bool   `yaml:"apply_softmax"`
}

type UserServiceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	AuthScheme string        `yaml:"auth_scheme"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Load reads the YAML file at path. An empty path falls back to
// .config.yaml, then config.yaml; a missing default file is not an error.
func Load(path string) (*Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = ".config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "config.yaml"
		}
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, path, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		path = ""
	default:
		return nil, path, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, path, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// applyEnv lets the environment (and .env, loaded by main) override the file.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("MODEL_METADATA_PATH"); v != "" {
		c.Model.MetadataPath = v
	}
	if v := os.Getenv("ONNXRUNTIME_LIB"); v != "" {
		c.Model.SharedLibrary = v
	}
	if v := os.Getenv("USER_SERVICE_URL"); v != "" {
		c.UserService.BaseURL = v
	}
	if v := os.Getenv("USER_SERVICE_AUTH_SCHEME"); v != "" {
		c.UserService.AuthScheme = v
	}
	if v := os.Getenv("USER_SERVICE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid USER_SERVICE_TIMEOUT %q: %w", v, err)
		}
		c.UserService.Timeout = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		c.Upload.MaxBytes = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.AllowedOrigin == "" {
		c.Server.AllowedOrigin = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Model.Path == "" {
		c.Model.Path = DefaultModelPath
	}
	if c.Model.MetadataPath == "" {
		c.Model.MetadataPath = DefaultMetadataPath
	}
	if c.Model.ImageSize == 0 {
		c.Model.ImageSize = DefaultImageSize
	}
	if c.UserService.BaseURL == "" {
		c.UserService.BaseURL = DefaultUserServiceURL
	}
	if c.UserService.AuthScheme == "" {
		c.UserService.AuthScheme = DefaultAuthScheme
	}
	if c.UserService.Timeout == 0 {
		c.UserService.Timeout = DefaultUserServiceWait
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = DefaultMaxUploadBytes
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Model.ImageSize < 0 {
		return fmt.Errorf("model.image_size must be positive, got %d", c.Model.ImageSize)
	}
	if c.UserService.Timeout < 0 {
		return fmt.Errorf("user_service.timeout must not be negative, got %s", c.UserService.Timeout)
	}
	if c.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload.max_bytes must not be negative, got %d", c.Upload.MaxBytes)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
