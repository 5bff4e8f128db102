package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the vpiod configuration
type Config struct {
	Audio struct {
		// Capture parameters
		SampleRate   float64 `yaml:"sample_rate"`
		EchoCancel   bool    `yaml:"echo_cancel"`
		EnableRender bool    `yaml:"enable_render"`

		// Pull-mode channel depth before frames are dropped
		FrameChannelDepth int `yaml:"frame_channel_depth"`

		// Use the in-process mock unit instead of platform audio
		UseMockUnit bool `yaml:"use_mock_unit"`
	} `yaml:"audio"`

	Monitor struct {
		FFTSize int `yaml:"fft_size"`
	} `yaml:"monitor"`

	Recording struct {
		Enabled   bool   `yaml:"enabled"`
		Directory string `yaml:"directory"`
	} `yaml:"recording"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxSessions  int    `yaml:"max_sessions"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameChannelDepth == 0 {
		c.Audio.FrameChannelDepth = 16
	}
	if c.Monitor.FFTSize == 0 {
		c.Monitor.FFTSize = 1024
	}
	if c.Recording.Directory == "" {
		c.Recording.Directory = "./recordings"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8090
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "127.0.0.1"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./vpiod.db"
	}
	if c.Storage.MaxSessions == 0 {
		c.Storage.MaxSessions = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10 // megabytes
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 30 // days
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %v", c.Audio.SampleRate)
	}
	if c.Audio.FrameChannelDepth < 0 {
		return fmt.Errorf("audio.frame_channel_depth must not be negative, got %d", c.Audio.FrameChannelDepth)
	}
	if c.Monitor.FFTSize < 1 || c.Monitor.FFTSize&(c.Monitor.FFTSize-1) != 0 {
		return fmt.Errorf("monitor.fft_size must be a positive power of two, got %d", c.Monitor.FFTSize)
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port out of range: %d", c.Web.Port)
	}
	if c.Storage.MaxSessions < 1 {
		return fmt.Errorf("storage.max_sessions must be at least 1, got %d", c.Storage.MaxSessions)
	}
	return nil
}
