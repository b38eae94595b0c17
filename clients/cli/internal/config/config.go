package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "FORMRELAY"

	keyServerURL   = "server_url"
	keyTimeoutSec  = "timeout_sec"
	keyLogLevel    = "log_level"
	keyLogFormat   = "log_format"
	keyConfigFile  = "cli_config"
	defaultTimeout = 30
)

// Config is the resolved CLI configuration.
type Config struct {
	serverURL  string
	timeoutSec int
	logLevel   string
	logFormat  string
}

// Load reads FORMRELAY_* environment variables and, when FORMRELAY_CLI_CONFIG
// names a file, that file. Environment variables win.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyServerURL, "http://localhost:5000")
	v.SetDefault(keyTimeoutSec, defaultTimeout)
	v.SetDefault(keyLogLevel, "WARN")
	v.SetDefault(keyLogFormat, "text")

	if configFile := strings.TrimSpace(v.GetString(keyConfigFile)); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read cli config %s: %w", configFile, err)
		}
	}

	timeoutSec := v.GetInt(keyTimeoutSec)
	if timeoutSec <= 0 {
		return Config{}, fmt.Errorf("invalid %s_%s: must be positive", envPrefix, strings.ToUpper(keyTimeoutSec))
	}

	return Config{
		serverURL:  strings.TrimSpace(v.GetString(keyServerURL)),
		timeoutSec: timeoutSec,
		logLevel:   v.GetString(keyLogLevel),
		logFormat:  v.GetString(keyLogFormat),
	}, nil
}

func (cfg Config) ServerURL() string {
	return cfg.serverURL
}

func (cfg Config) TimeoutSeconds() int {
	return cfg.timeoutSec
}

func (cfg Config) OperationTimeout() time.Duration {
	return time.Duration(cfg.timeoutSec) * time.Second
}

func (cfg Config) LogLevel() string {
	return cfg.logLevel
}

func (cfg Config) LogFormat() string {
	return cfg.logFormat
}
