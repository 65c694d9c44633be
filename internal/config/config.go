package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// Device
	DeviceAddr   string // host[:port] the scope was pointed at
	DataPath     string
	IdentityPath string
	ConfigPath   string

	// Connection timing
	ReconnectDelayMS   int
	ReadTimeoutMS      int // 0 disables the silence watchdog
	HandshakeTimeoutMS int
	HTTPTimeoutMS      int
	ConfigRequestsPerS float64
	ReadLimitBytes     int64

	// Pipeline
	EventLogSize    int
	FrameIntervalMS int // display refresh cadence
	PauseSync       bool

	// Charts
	ChartWidth        int
	ChartHeight       int
	PixelRatio        float64
	GridLines         int
	DefaultCapacity   int
	ChannelGroupsFile string // empty = built-in high-speed accelerometer group

	// Viewer
	ViewAddr string

	// MQTT status mirror (disabled when MQTTBroker is empty)
	MQTTBroker              string
	MQTTClientIDScope       string
	MQTTClientIDConsole     string
	TopicStatus             string
	StatusPublishIntervalMS int

	// Device simulator
	SimAddr       string
	SimDeviceIP   string
	SimSampleRate int // samples per second per axis
	SimChunkSize  int // samples per axis per message
	SimFullScaleG float64

	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"
	LogFile   string
}

// Package-level singleton. External code must use InitGlobal() to set and
// Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value set.
func Default() *Config {
	return &Config{
		DataPath:                "/ws/data",
		IdentityPath:            "/api/stats",
		ConfigPath:              "/api/config",
		ReconnectDelayMS:        3000,
		HandshakeTimeoutMS:      5000,
		HTTPTimeoutMS:           2000,
		ConfigRequestsPerS:      5,
		ReadLimitBytes:          1 << 20,
		EventLogSize:            50,
		FrameIntervalMS:         16,
		ChartWidth:              800,
		ChartHeight:             300,
		PixelRatio:              1,
		GridLines:               4,
		DefaultCapacity:         10000,
		ViewAddr:                ":8080",
		MQTTClientIDScope:       "inertial-scope",
		MQTTClientIDConsole:     "inertial-scope-console",
		TopicStatus:             "inertial_scope/status",
		StatusPublishIntervalMS: 500,
		SimAddr:                 ":8090",
		SimSampleRate:           1000,
		SimChunkSize:            50,
		SimFullScaleG:           4,
		LogLevel:                "info",
		LogFormat:               "console",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default(). Empty lines and lines
// starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Device
	case "DEVICE_ADDR":
		c.DeviceAddr = value
	case "DATA_PATH":
		c.DataPath = value
	case "IDENTITY_PATH":
		c.IdentityPath = value
	case "CONFIG_PATH":
		c.ConfigPath = value

	// Connection timing
	case "RECONNECT_DELAY_MS":
		c.ReconnectDelayMS, err = atoiMin(key, value, 1)
	case "READ_TIMEOUT_MS":
		c.ReadTimeoutMS, err = atoiMin(key, value, 0)
	case "HANDSHAKE_TIMEOUT_MS":
		c.HandshakeTimeoutMS, err = atoiMin(key, value, 1)
	case "HTTP_TIMEOUT_MS":
		c.HTTPTimeoutMS, err = atoiMin(key, value, 1)
	case "CONFIG_REQUESTS_PER_SEC":
		c.ConfigRequestsPerS, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CONFIG_REQUESTS_PER_SEC %q: %w", value, err)
		}
	case "READ_LIMIT_BYTES":
		c.ReadLimitBytes, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid READ_LIMIT_BYTES %q: %w", value, err)
		}

	// Pipeline
	case "EVENT_LOG_SIZE":
		c.EventLogSize, err = atoiMin(key, value, 1)
	case "FRAME_INTERVAL_MS":
		c.FrameIntervalMS, err = atoiMin(key, value, 1)
	case "PAUSE_SYNC":
		c.PauseSync, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid PAUSE_SYNC %q: %w", value, err)
		}

	// Charts
	case "CHART_WIDTH":
		c.ChartWidth, err = atoiMin(key, value, 1)
	case "CHART_HEIGHT":
		c.ChartHeight, err = atoiMin(key, value, 1)
	case "PIXEL_RATIO":
		c.PixelRatio, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid PIXEL_RATIO %q: %w", value, err)
		}
		if c.PixelRatio <= 0 {
			return fmt.Errorf("PIXEL_RATIO must be > 0, got %v", c.PixelRatio)
		}
	case "GRID_LINES":
		c.GridLines, err = atoiMin(key, value, 0)
	case "DEFAULT_CAPACITY":
		c.DefaultCapacity, err = atoiMin(key, value, 1)
	case "CHANNEL_GROUPS_FILE":
		c.ChannelGroupsFile = value

	// Viewer
	case "VIEW_ADDR":
		c.ViewAddr = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_SCOPE":
		c.MQTTClientIDScope = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "STATUS_PUBLISH_INTERVAL_MS":
		c.StatusPublishIntervalMS, err = atoiMin(key, value, 1)

	// Device simulator
	case "SIM_ADDR":
		c.SimAddr = value
	case "SIM_DEVICE_IP":
		c.SimDeviceIP = value
	case "SIM_SAMPLE_RATE":
		c.SimSampleRate, err = atoiMin(key, value, 1)
	case "SIM_CHUNK_SIZE":
		c.SimChunkSize, err = atoiMin(key, value, 1)
	case "SIM_FULL_SCALE_G":
		c.SimFullScaleG, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SIM_FULL_SCALE_G %q: %w", value, err)
		}

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)
	case "LOG_FORMAT":
		c.LogFormat = strings.ToLower(value)
	case "LOG_FILE":
		c.LogFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func atoiMin(key, value string, min int) (int, error) {
	val, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if val < min {
		return 0, fmt.Errorf("%s must be >= %d, got %d", key, min, val)
	}
	return val, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.DeviceAddr == "" {
		return fmt.Errorf("DEVICE_ADDR is required")
	}
	if !strings.HasPrefix(c.DataPath, "/") {
		return fmt.Errorf("DATA_PATH must start with /, got %q", c.DataPath)
	}
	if c.ViewAddr == "" {
		return fmt.Errorf("VIEW_ADDR is required")
	}
	if c.MQTTBroker != "" && c.TopicStatus == "" {
		return fmt.Errorf("TOPIC_STATUS is required when MQTT_BROKER is set")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// ReconnectDelay is the constant pause between connection attempts.
func (c *Config) ReconnectDelay() time.Duration { return ms(c.ReconnectDelayMS) }

// ReadTimeout is the silence watchdog, 0 when disabled.
func (c *Config) ReadTimeout() time.Duration { return ms(c.ReadTimeoutMS) }

// HandshakeTimeout bounds the websocket opening handshake.
func (c *Config) HandshakeTimeout() time.Duration { return ms(c.HandshakeTimeoutMS) }

// HTTPTimeout bounds identity and configuration requests.
func (c *Config) HTTPTimeout() time.Duration { return ms(c.HTTPTimeoutMS) }

// FrameInterval is the display refresh cadence.
func (c *Config) FrameInterval() time.Duration { return ms(c.FrameIntervalMS) }

// StatusPublishInterval is the MQTT status mirror cadence.
func (c *Config) StatusPublishInterval() time.Duration { return ms(c.StatusPublishIntervalMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
