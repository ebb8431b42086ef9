// Package config loads daemon configuration from the environment, with an
// optional .env file loaded first. Grounded on NebulaLink's
// internal/config.Config: unexported fields, a single New() constructor,
// and getter methods so the rest of the daemon can't mutate configuration
// after startup.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds etdcd's daemon-wide settings. Fields are unexported so the
// only way to change configuration is to construct a new Config.
type Config struct {
	controlListenAddr string
	dataListenAddr    string
	dataProtocol      string
	serviceName       string
	serviceDisplay    string
	serviceDesc       string
	logFilePath       string
	advertiseEnabled  bool
	controlBufTimeout time.Duration
}

// New loads configuration from the process environment, after attempting
// to load a ".env" file in the working directory (missing files are not an
// error, matching godotenv's typical usage in the examples).
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		controlListenAddr: getenvDefault("ETDC_CONTROL_ADDR", ":9876"),
		dataListenAddr:    getenvDefault("ETDC_DATA_ADDR", ":9877"),
		dataProtocol:      getenvDefault("ETDC_DATA_PROTOCOL", "tcp"),
		serviceName:       getenvDefault("ETDC_SERVICE_NAME", "etdcd"),
		serviceDisplay:    getenvDefault("ETDC_SERVICE_DISPLAY_NAME", "ETD Transfer Daemon"),
		serviceDesc:       getenvDefault("ETDC_SERVICE_DESCRIPTION", "Peer-to-peer file transfer coordination daemon"),
		logFilePath:       getenvDefault("ETDC_LOG_FILE", "etdcd.log"),
		advertiseEnabled:  getenvBool("ETDC_ADVERTISE", true),
		controlBufTimeout: getenvSeconds("ETDC_CONTROL_TIMEOUT_SEC", 0),
	}
	return cfg
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func (c *Config) ControlListenAddr() string   { return c.controlListenAddr }
func (c *Config) DataListenAddr() string      { return c.dataListenAddr }
func (c *Config) DataProtocol() string        { return c.dataProtocol }
func (c *Config) ServiceName() string         { return c.serviceName }
func (c *Config) ServiceDisplayName() string  { return c.serviceDisplay }
func (c *Config) ServiceDescription() string  { return c.serviceDesc }
func (c *Config) LogFilePath() string         { return c.logFilePath }
func (c *Config) AdvertiseEnabled() bool      { return c.advertiseEnabled }
func (c *Config) ControlReadTimeout() time.Duration { return c.controlBufTimeout }
