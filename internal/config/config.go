package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnvKey = "FORMRELAY_CONFIG_PATH"
	dotEnvFile       = ".env"

	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"

	defaultPort                 = 5000
	defaultSMTPHost             = "smtp.gmail.com"
	defaultSMTPPort             = 587
	defaultSMTPTLSMode          = "starttls"
	defaultUploadDir            = "uploads"
	defaultMaxUploadBytes int64 = 50 << 20
	defaultLogLevel             = "INFO"
	defaultLogFormat            = "text"
	defaultConnectionTimeoutSec = 30
	defaultSweepIntervalSec     = 900
	defaultStaleUploadSec       = 3600
	allowAllOriginsToken        = "*"
)

var defaultAllowedOrigins = []string{
	"https://mailflow-client.vercel.app",
	"http://localhost:5173",
}

type Config struct {
	Port               int
	HTTPAllowedOrigins []string
	UploadDir          string
	MaxUploadBytes     int64

	MailTransport string
	FromEmail     string

	SMTPUsername string
	SMTPPassword string
	SMTPHost     string
	SMTPPort     int
	SMTPTLSMode  string

	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	LogLevel  string
	LogFormat string

	ConnectionTimeoutSec int
	SweepIntervalSec     int
	StaleUploadSec       int
}

type fileConfig struct {
	Server struct {
		Port             int      `yaml:"port"`
		AllowedOrigins   []string `yaml:"allowedOrigins"`
		UploadDir        string   `yaml:"uploadDir"`
		MaxUploadBytes   int64    `yaml:"maxUploadBytes"`
		SweepIntervalSec int      `yaml:"sweepIntervalSec"`
		StaleUploadSec   int      `yaml:"staleUploadSec"`
	} `yaml:"server"`
	Mail struct {
		Transport string `yaml:"transport"`
		From      string `yaml:"from"`
	} `yaml:"mail"`
	SMTP struct {
		Username             string `yaml:"username"`
		Password             string `yaml:"password"`
		Host                 string `yaml:"host"`
		Port                 int    `yaml:"port"`
		TLSMode              string `yaml:"tlsMode"`
		ConnectionTimeoutSec int    `yaml:"connectionTimeoutSec"`
	} `yaml:"smtp"`
	SES struct {
		Region          string `yaml:"region"`
		AccessKeyID     string `yaml:"accessKeyId"`
		SecretAccessKey string `yaml:"secretAccessKey"`
	} `yaml:"ses"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadConfig layers defaults, an optional .env file, an optional YAML file and
// the process environment, in increasing order of precedence.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	configuration := defaultConfig()
	if configPath := strings.TrimSpace(os.Getenv(configPathEnvKey)); configPath != "" {
		if err := applyConfigFile(configPath, &configuration); err != nil {
			return Config{}, err
		}
	}

	var waitGroup sync.WaitGroup
	var allowedOrigins string

	taskFunctions := []func() error{
		loadEnvInt("PORT", &configuration.Port),
		loadEnvString("SMTP_USER", &configuration.SMTPUsername),
		loadEnvString("SMTP_PASSWORD", &configuration.SMTPPassword),
		loadEnvString("SMTP_HOST", &configuration.SMTPHost),
		loadEnvInt("SMTP_PORT", &configuration.SMTPPort),
		loadEnvString("SMTP_TLS_MODE", &configuration.SMTPTLSMode),
		loadEnvString("MAIL_FROM", &configuration.FromEmail),
		loadEnvString("MAIL_TRANSPORT", &configuration.MailTransport),
		loadEnvString("SES_REGION", &configuration.SESRegion),
		loadEnvString("SES_ACCESS_KEY_ID", &configuration.SESAccessKeyID),
		loadEnvString("SES_SECRET_ACCESS_KEY", &configuration.SESSecretAccessKey),
		loadEnvString("UPLOAD_DIR", &configuration.UploadDir),
		loadEnvInt64("MAX_UPLOAD_BYTES", &configuration.MaxUploadBytes),
		loadEnvString("HTTP_ALLOWED_ORIGINS", &allowedOrigins),
		loadEnvString("LOG_LEVEL", &configuration.LogLevel),
		loadEnvString("LOG_FORMAT", &configuration.LogFormat),
		loadEnvInt("CONNECTION_TIMEOUT_SEC", &configuration.ConnectionTimeoutSec),
		loadEnvInt("SWEEP_INTERVAL_SEC", &configuration.SweepIntervalSec),
		loadEnvInt("STALE_UPLOAD_SEC", &configuration.StaleUploadSec),
	}

	errorChannel := make(chan error, len(taskFunctions))
	for _, taskFunction := range taskFunctions {
		waitGroup.Add(1)
		go func(task func() error) {
			defer waitGroup.Done()
			if taskError := task(); taskError != nil {
				errorChannel <- taskError
			}
		}(taskFunction)
	}

	waitGroup.Wait()
	close(errorChannel)

	var errorMessages []string
	for errorValue := range errorChannel {
		errorMessages = append(errorMessages, errorValue.Error())
	}
	if len(errorMessages) > 0 {
		return Config{}, fmt.Errorf("configuration errors: %s", strings.Join(errorMessages, ", "))
	}

	if allowedOrigins != "" {
		configuration.HTTPAllowedOrigins = parseCSV(allowedOrigins)
	}
	if len(configuration.HTTPAllowedOrigins) == 1 && configuration.HTTPAllowedOrigins[0] == allowAllOriginsToken {
		configuration.HTTPAllowedOrigins = nil
	}
	configuration.MailTransport = strings.ToLower(configuration.MailTransport)
	configuration.SMTPTLSMode = strings.ToLower(configuration.SMTPTLSMode)
	if configuration.FromEmail == "" {
		configuration.FromEmail = configuration.SMTPUsername
	}

	if err := configuration.validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		HTTPAllowedOrigins:   append([]string(nil), defaultAllowedOrigins...),
		UploadDir:            defaultUploadDir,
		MaxUploadBytes:       defaultMaxUploadBytes,
		MailTransport:        TransportSMTP,
		SMTPHost:             defaultSMTPHost,
		SMTPPort:             defaultSMTPPort,
		SMTPTLSMode:          defaultSMTPTLSMode,
		LogLevel:             defaultLogLevel,
		LogFormat:            defaultLogFormat,
		ConnectionTimeoutSec: defaultConnectionTimeoutSec,
		SweepIntervalSec:     defaultSweepIntervalSec,
		StaleUploadSec:       defaultStaleUploadSec,
	}
}

func applyConfigFile(configPath string, configuration *Config) error {
	rawContents, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config %s: %w", configPath, err)
	}
	var parsed fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(rawContents))), &parsed); err != nil {
		return fmt.Errorf("parse config %s: %w", configPath, err)
	}

	setInt(&configuration.Port, parsed.Server.Port)
	if len(parsed.Server.AllowedOrigins) > 0 {
		configuration.HTTPAllowedOrigins = parseCSV(strings.Join(parsed.Server.AllowedOrigins, ","))
	}
	setString(&configuration.UploadDir, parsed.Server.UploadDir)
	if parsed.Server.MaxUploadBytes > 0 {
		configuration.MaxUploadBytes = parsed.Server.MaxUploadBytes
	}
	setInt(&configuration.SweepIntervalSec, parsed.Server.SweepIntervalSec)
	setInt(&configuration.StaleUploadSec, parsed.Server.StaleUploadSec)
	setString(&configuration.MailTransport, parsed.Mail.Transport)
	setString(&configuration.FromEmail, parsed.Mail.From)
	setString(&configuration.SMTPUsername, parsed.SMTP.Username)
	setString(&configuration.SMTPPassword, parsed.SMTP.Password)
	setString(&configuration.SMTPHost, parsed.SMTP.Host)
	setInt(&configuration.SMTPPort, parsed.SMTP.Port)
	setString(&configuration.SMTPTLSMode, parsed.SMTP.TLSMode)
	setInt(&configuration.ConnectionTimeoutSec, parsed.SMTP.ConnectionTimeoutSec)
	setString(&configuration.SESRegion, parsed.SES.Region)
	setString(&configuration.SESAccessKeyID, parsed.SES.AccessKeyID)
	setString(&configuration.SESSecretAccessKey, parsed.SES.SecretAccessKey)
	setString(&configuration.LogLevel, parsed.Logging.Level)
	setString(&configuration.LogFormat, parsed.Logging.Format)
	return nil
}

func (configuration Config) validate() error {
	var problems []string
	if configuration.Port <= 0 || configuration.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d", configuration.Port))
	}
	switch configuration.MailTransport {
	case TransportSMTP:
		if configuration.SMTPPort <= 0 || configuration.SMTPPort > 65535 {
			problems = append(problems, fmt.Sprintf("invalid smtp port %d", configuration.SMTPPort))
		}
	case TransportSES:
		if configuration.SESRegion == "" {
			problems = append(problems, "ses transport requires SES_REGION")
		}
	case TransportStdout:
	default:
		problems = append(problems, fmt.Sprintf("unsupported mail transport %q", configuration.MailTransport))
	}
	if configuration.MaxUploadBytes <= 0 {
		problems = append(problems, "max upload bytes must be positive")
	}
	if strings.TrimSpace(configuration.UploadDir) == "" {
		problems = append(problems, "upload dir is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, ", "))
	}
	return nil
}

// ListenAddr is the HTTP bind address for Port.
func (configuration Config) ListenAddr() string {
	return fmt.Sprintf(":%d", configuration.Port)
}

// SMTPConfigured reports whether SMTP credentials are present. Missing
// credentials surface as relay failures, not startup errors.
func (configuration Config) SMTPConfigured() bool {
	return configuration.SMTPUsername != "" && configuration.SMTPPassword != ""
}

// loadEnvString overrides destination when the variable is set.
func loadEnvString(environmentKey string, destination *string) func() error {
	return func() error {
		environmentValue := strings.TrimSpace(os.Getenv(environmentKey))
		if environmentValue != "" {
			*destination = environmentValue
		}
		return nil
	}
}

func loadEnvInt(environmentKey string, destination *int) func() error {
	const invalidIntFormat = "invalid integer for %s: %v"
	return func() error {
		environmentValue := strings.TrimSpace(os.Getenv(environmentKey))
		if environmentValue == "" {
			return nil
		}
		parsedInteger, conversionError := strconv.Atoi(environmentValue)
		if conversionError != nil {
			return fmt.Errorf(invalidIntFormat, environmentKey, conversionError)
		}
		*destination = parsedInteger
		return nil
	}
}

func loadEnvInt64(environmentKey string, destination *int64) func() error {
	const invalidIntFormat = "invalid integer for %s: %v"
	return func() error {
		environmentValue := strings.TrimSpace(os.Getenv(environmentKey))
		if environmentValue == "" {
			return nil
		}
		parsedInteger, conversionError := strconv.ParseInt(environmentValue, 10, 64)
		if conversionError != nil {
			return fmt.Errorf(invalidIntFormat, environmentKey, conversionError)
		}
		*destination = parsedInteger
		return nil
	}
}

func setString(destination *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*destination = trimmed
	}
}

func setInt(destination *int, value int) {
	if value > 0 {
		*destination = value
	}
}

func parseCSV(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	rawParts := strings.Split(trimmed, ",")
	var normalized []string
	for _, part := range rawParts {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		normalized = append(normalized, candidate)
	}
	return normalized
}
