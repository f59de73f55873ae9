package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/kioskd/kioskd/internal/common"
	"github.com/kioskd/kioskd/internal/watch"
)

func DefaultConfig() *Config {

	v := viper.New()

	// Set default values
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("error unmarshaling default config: %v", err)
	}

	return &config
}

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	if err := setupViperConfig(v, configFile); err != nil {
		return nil, err
	}

	bindEnvironmentVariables(v)

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, err
	}

	if err := setupLogging(config, v); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFile loads the .env file if it exists
func loadEnvFile() error {
	if err := gotenv.Load(); err != nil {
		// .env file not found, that's okay - continue with other sources
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}
	return nil
}

// setupViperConfig configures viper with file paths and defaults
func setupViperConfig(v *viper.Viper, configFile string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kioskd")

	if home, err := os.UserHomeDir(); err == nil && len(home) > 0 {
		v.AddConfigPath(filepath.Join(home, ".config", "kioskd"))
	}

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	return nil
}

// bindEnvironmentVariables binds all environment variables to viper
func bindEnvironmentVariables(v *viper.Viper) {

	v.BindEnv("profile.dir", "KIOSK_PROFILE_DIR")
	v.BindEnv("remote.document", "KIOSK_REMOTE_DOCUMENT")
	v.BindEnv("remote.collection", "KIOSK_REMOTE_COLLECTION")

	bindSecretEnvVars(v)
	bindWatchEnvVars(v)
	bindBrowserEnvVars(v)
	bindLoggingEnvVars(v)
	bindServerEnvVars(v)
}

// bindSecretEnvVars binds the encrypted credential bundle
func bindSecretEnvVars(v *viper.Viper) {
	v.BindEnv("secrets.key", "KIOSK_SECRET_KEY")
	v.BindEnv("secrets.iv", "KIOSK_SECRET_IV")
	v.BindEnv("secrets.tag", "KIOSK_SECRET_TAG")
	v.BindEnv("secrets.ciphertext", "KIOSK_SECRET_CIPHERTEXT")
	v.BindEnv("secrets.salt", "KIOSK_SECRET_SALT")
}

func bindWatchEnvVars(v *viper.Viper) {
	v.BindEnv("watch.backend", "KIOSK_WATCH_BACKEND")

	// Firestore
	v.BindEnv("watch.firestore.project_id", "KIOSK_WATCH_FIRESTORE_PROJECT_ID")
	v.BindEnv("watch.firestore.database_id", "KIOSK_WATCH_FIRESTORE_DATABASE_ID")

	// Local files
	v.BindEnv("watch.file.root", "KIOSK_WATCH_FILE_ROOT")
	v.BindEnv("watch.file.debounce", "KIOSK_WATCH_FILE_DEBOUNCE")

	// HTTP polling
	v.BindEnv("watch.http.endpoint", "KIOSK_WATCH_HTTP_ENDPOINT")
	v.BindEnv("watch.http.token", "KIOSK_WATCH_HTTP_TOKEN")
	v.BindEnv("watch.http.interval", "KIOSK_WATCH_HTTP_INTERVAL")
	v.BindEnv("watch.http.timeout", "KIOSK_WATCH_HTTP_TIMEOUT")
}

func bindBrowserEnvVars(v *viper.Viper) {
	v.BindEnv("browser.bin", "KIOSK_BROWSER_BIN")
	v.BindEnv("browser.no_sandbox", "KIOSK_BROWSER_NO_SANDBOX")
	v.BindEnv("browser.timeout", "KIOSK_BROWSER_TIMEOUT")
	v.BindEnv("gate.poll_interval", "KIOSK_GATE_POLL_INTERVAL")
}

// bindLoggingEnvVars binds logging configuration environment variables
func bindLoggingEnvVars(v *viper.Viper) {
	v.BindEnv("logging.level", "KIOSK_LOGGING_LEVEL")
	v.BindEnv("logging.format", "KIOSK_LOGGING_FORMAT")
}

func bindServerEnvVars(v *viper.Viper) {
	v.BindEnv("server.enabled", "KIOSK_SERVER_ENABLED")
	v.BindEnv("server.host", "KIOSK_SERVER_HOST")
	v.BindEnv("server.port", "KIOSK_SERVER_PORT")
}

// readAndUnmarshalConfig reads the configuration file and unmarshals it
func readAndUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setupLogging configures the logging system based on the config
func setupLogging(config *Config, v *viper.Viper) error {
	logrusLevel, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}

	logrus.SetLevel(logrusLevel)
	logrus.AddHook(config.GetJournal())

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithFields(logrus.Fields{
			"format": config.Logging.Format,
		}).Warn("Unknown log format")
	}

	// Dump out the config settings if in debug mode. Secrets are skipped.
	if logrusLevel >= logrus.DebugLevel {
		for key, value := range v.AllSettings() {
			if key == "secrets" {
				continue
			}
			logrus.Debugf("Config '%s': %v\n", key, value)
		}
	}

	return nil
}

// Validate checks the settings the kiosk cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if len(strings.TrimSpace(c.Profile.Dir)) == 0 {
		errs = append(errs, errors.New("profile.dir must be set"))
	}
	if len(c.Remote.Document) == 0 {
		errs = append(errs, errors.New("remote.document must be set"))
	}
	if len(c.Remote.Collection) == 0 {
		errs = append(errs, errors.New("remote.collection must be set"))
	}

	switch strings.ToLower(c.Watch.Backend) {
	case watch.BackendFirestore, watch.BackendFile:
	case watch.BackendHTTP:
		if !common.IsValidURL(c.Watch.HTTP.Endpoint) {
			errs = append(errs, fmt.Errorf("watch.http.endpoint %q is not a valid url", c.Watch.HTTP.Endpoint))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", watch.ErrUnknownBackend, c.Watch.Backend))
	}

	if c.Browser.Timeout <= 0 {
		errs = append(errs, errors.New("browser.timeout must be positive"))
	}
	if c.Gate.PollInterval < 50*time.Millisecond {
		errs = append(errs, errors.New("gate.poll_interval must be at least 50ms"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {

	// Persisted browser profile, wiped on security resets
	v.SetDefault("profile.dir", "./user_data")

	// Remote records
	v.SetDefault("remote.document", "kiosks/default")
	v.SetDefault("remote.collection", "internalUsers")

	// Watch backend defaults
	v.SetDefault("watch.backend", watch.BackendFirestore)
	v.SetDefault("watch.firestore.project_id", "")
	v.SetDefault("watch.firestore.database_id", "")
	v.SetDefault("watch.file.root", "./remote")
	v.SetDefault("watch.file.debounce", "200ms")
	v.SetDefault("watch.http.endpoint", "")
	v.SetDefault("watch.http.token", "")
	v.SetDefault("watch.http.interval", "10s")
	v.SetDefault("watch.http.timeout", "5s")

	// Browser defaults
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.timeout", "60s")

	// Gate URL watchdog
	v.SetDefault("gate.poll_interval", "300ms")

	// Secrets are only ever supplied through the environment or a config file
	v.SetDefault("secrets.key", "")
	v.SetDefault("secrets.iv", "")
	v.SetDefault("secrets.tag", "")
	v.SetDefault("secrets.ciphertext", "")
	v.SetDefault("secrets.salt", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Status server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5226)
}
