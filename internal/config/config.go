package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDSync    string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicSynced string
	TopicEvents string

	// Synchronization engine
	SyncMode           string // "carryforward" or "windowed"
	SyncChannels       []measure.ChannelType
	SyncPrimaryChannel measure.ChannelType
	ChannelCapacity    int
	SkipWhenProcessing bool
	StopWhenFilled     bool
	StopWhenOutOfOrder bool
	DetectStale        bool
	StaleOffsetNanos   int64
	WindowNanos        int64
	Interpolate        bool

	// Sources
	UseSyntheticSources bool
	SyntheticInterval   int // milliseconds

	// IMU Hardware
	IMUSPIDevice      string
	IMUCSPin          string
	IMUSampleInterval int // milliseconds

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// BMP barometer
	BMPSPIDevice      string
	BMPSampleInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string // empty selects the first available bus
	DisplayUpdateInterval int    // milliseconds

	// Distinguishes an explicit SYNC_PRIMARY_CHANNEL from the zero value.
	primaryChannelSet bool
}

// Package-level unexported variables for the config singleton; external
// code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
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
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_SYNC":
		c.MQTTClientIDSync = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_SYNCED":
		c.TopicSynced = value
	case "TOPIC_EVENTS":
		c.TopicEvents = value

	// Engine
	case "SYNC_MODE":
		if value != "carryforward" && value != "windowed" {
			return fmt.Errorf("SYNC_MODE must be \"carryforward\" or \"windowed\", got %q", value)
		}
		c.SyncMode = value
	case "SYNC_CHANNELS":
		c.SyncChannels = c.SyncChannels[:0]
		for _, name := range strings.Split(value, ",") {
			ch, ok := measure.ParseChannelType(strings.TrimSpace(name))
			if !ok {
				return fmt.Errorf("SYNC_CHANNELS: unknown channel %q", name)
			}
			c.SyncChannels = append(c.SyncChannels, ch)
		}
	case "SYNC_PRIMARY_CHANNEL":
		ch, ok := measure.ParseChannelType(value)
		if !ok {
			return fmt.Errorf("SYNC_PRIMARY_CHANNEL: unknown channel %q", value)
		}
		c.SyncPrimaryChannel = ch
		c.primaryChannelSet = true
	case "CHANNEL_CAPACITY":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CHANNEL_CAPACITY %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("CHANNEL_CAPACITY must be >= 1, got %d", n)
		}
		c.ChannelCapacity = n
	case "SKIP_WHEN_PROCESSING":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.SkipWhenProcessing = b
	case "STOP_WHEN_FILLED_BUFFER":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.StopWhenFilled = b
	case "STOP_WHEN_OUT_OF_ORDER":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.StopWhenOutOfOrder = b
	case "DETECT_STALE":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.DetectStale = b
	case "STALE_OFFSET_NS":
		ns, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid STALE_OFFSET_NS %q: %w", value, err)
		}
		c.StaleOffsetNanos = ns
	case "WINDOW_NS":
		ns, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid WINDOW_NS %q: %w", value, err)
		}
		c.WindowNanos = ns
	case "INTERPOLATE":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Interpolate = b

	// Sources
	case "USE_SYNTHETIC_SOURCES":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.UseSyntheticSources = b
	case "SYNTHETIC_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SYNTHETIC_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.SyntheticInterval = interval

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.IMUSampleInterval = interval

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// BMP barometer
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value
	case "BMP_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BMP_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.BMPSampleInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseBool(key, value string) (bool, error) {
	switch value {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s %q: expected true/false", key, value)
	}
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SyncMode == "" {
		return fmt.Errorf("SYNC_MODE is required")
	}
	if len(c.SyncChannels) < 2 {
		return fmt.Errorf("SYNC_CHANNELS must list at least two channels")
	}
	if !c.primaryChannelSet {
		return fmt.Errorf("SYNC_PRIMARY_CHANNEL is required")
	}
	primaryListed := false
	for _, ch := range c.SyncChannels {
		if ch == c.SyncPrimaryChannel {
			primaryListed = true
		}
	}
	if !primaryListed {
		return fmt.Errorf("SYNC_PRIMARY_CHANNEL %s is not in SYNC_CHANNELS", c.SyncPrimaryChannel)
	}
	if c.SyncMode == "windowed" && c.WindowNanos <= 0 {
		return fmt.Errorf("WINDOW_NS is required in windowed mode")
	}
	if c.DetectStale && c.StaleOffsetNanos <= 0 {
		return fmt.Errorf("STALE_OFFSET_NS is required when DETECT_STALE is enabled")
	}
	if !c.UseSyntheticSources {
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required")
		}
		if c.GPSSerialPort == "" {
			return fmt.Errorf("GPS_SERIAL_PORT is required")
		}
		if c.GPSBaudRate == 0 {
			return fmt.Errorf("GPS_BAUD_RATE is required")
		}
		for _, ch := range c.SyncChannels {
			if ch == measure.ChannelPressure && c.BMPSPIDevice == "" {
				return fmt.Errorf("BMP_SPI_DEVICE is required")
			}
		}
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so repeated calls are no-ops.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
