// Package config loads application configuration from TOML files with
// multi-path lookup.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// MainConfig holds the basic application settings.
type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// MysqlConfig holds the MySQL connection settings.
type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

// RedisConfig holds the Redis connection settings. Redis backs the presence
// registry, the pending-notification queue and the dedup ledger, so it must
// point at a store shared by all server instances.
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	Db       int    `toml:"db"`
}

// LogConfig controls zap output and lumberjack rotation.
type LogConfig struct {
	LogPath    string `toml:"logPath"`
	FileName   string `toml:"fileName"`
	MaxSize    int    `toml:"maxSize"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAge     int    `toml:"maxAge"`
	Level      string `toml:"level"`
}

// KafkaConfig configures the broadcast backplane. BackplaneMode selects
// "channel" (single process) or "kafka" (horizontal scale-out).
type KafkaConfig struct {
	BackplaneMode string        `toml:"backplaneMode"`
	HostPort      string        `toml:"hostPort"`
	GatewayTopic  string        `toml:"gatewayTopic"`
	Timeout       time.Duration `toml:"timeout"`
}

// JWTConfig configures dashboard access tokens.
type JWTConfig struct {
	Secret            string `toml:"secret"`
	AccessTokenExpiry int    `toml:"accessTokenExpiry"` // minutes
}

// SnowflakeConfig holds the snowflake node id, unique per instance.
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"`
}

// ChatConfig holds the tunables of the chat core.
type ChatConfig struct {
	// Business-hours window for live intake, local time. A chat is only
	// created inside [OpenHour, CloseHour).
	BusinessOpenHour  int `toml:"businessOpenHour"`
	BusinessCloseHour int `toml:"businessCloseHour"`

	// Presence entries older than IdleTimeoutSeconds are reaped every
	// ReapIntervalSeconds.
	IdleTimeoutSeconds  int `toml:"idleTimeoutSeconds"`
	ReapIntervalSeconds int `toml:"reapIntervalSeconds"`

	// Pending-notification queue bound and retention.
	PendingCap      int `toml:"pendingCap"`
	PendingTTLHours int `toml:"pendingTTLHours"`

	// Grace window for tab arbitration and the dedup marker window.
	TabGraceSeconds    int `toml:"tabGraceSeconds"`
	DedupWindowSeconds int `toml:"dedupWindowSeconds"`
}

// AssignerConfig points at the external lead-assignment service.
type AssignerConfig struct {
	BaseURL        string `toml:"baseURL"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

// Config aggregates all sections.
type Config struct {
	MainConfig      `toml:"mainConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	RedisConfig     `toml:"redisConfig"`
	LogConfig       `toml:"logConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	JWTConfig       `toml:"jwtConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	ChatConfig      `toml:"chatConfig"`
	AssignerConfig  `toml:"assignerConfig"`
}

var config *Config

// LoadConfig tries the candidate paths in order and stops at the first file
// that parses.
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml",
		"configs/config.toml",
		"../../configs/config_local.toml",
		"../../configs/config.toml",
	}
	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			return nil
		}
	}
	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// GetConfig returns the lazily loaded configuration singleton.
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}
