package config

import (
	"time"

	"github.com/kioskd/kioskd/internal/credentials"
	"github.com/kioskd/kioskd/internal/fullsession"
	"github.com/kioskd/kioskd/internal/gate"
	"github.com/kioskd/kioskd/internal/preauth"
	"github.com/kioskd/kioskd/internal/watch"
)

// Config represents the kiosk controller configuration
type Config struct {
	Profile ProfileConfig `mapstructure:"profile"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Browser BrowserConfig `mapstructure:"browser"`
	Gate    GateConfig    `mapstructure:"gate"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`

	journal *journal
}

type ProfileConfig struct {
	Dir string `mapstructure:"dir" default:"./user_data"`
}

// RemoteConfig names the two records the watch service subscribes to.
type RemoteConfig struct {
	Document   string `mapstructure:"document" default:"kiosks/default"`
	Collection string `mapstructure:"collection" default:"internalUsers"`
}

type WatchConfig struct {
	Backend   string          `mapstructure:"backend" default:"firestore"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	File      FileConfig      `mapstructure:"file"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type FirestoreConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	DatabaseID string `mapstructure:"database_id"`
}

type FileConfig struct {
	Root     string        `mapstructure:"root" default:"./remote"`
	Debounce time.Duration `mapstructure:"debounce" default:"200ms"`
}

type HTTPConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Interval time.Duration `mapstructure:"interval" default:"10s"`
	Timeout  time.Duration `mapstructure:"timeout" default:"5s"`
}

type BrowserConfig struct {
	Bin       string        `mapstructure:"bin"`
	NoSandbox bool          `mapstructure:"no_sandbox" default:"true"`
	Timeout   time.Duration `mapstructure:"timeout" default:"60s"`
}

type GateConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" default:"300ms"`
}

// SecretsConfig holds the encrypted service credential bundle. Values are
// hex or base64; the ciphertext may also be a file path or a gcpsm:// name.
type SecretsConfig struct {
	Key        string `mapstructure:"key"`
	IV         string `mapstructure:"iv"`
	Tag        string `mapstructure:"tag"`
	Ciphertext string `mapstructure:"ciphertext"`
	Salt       string `mapstructure:"salt"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"text"`
}

// ServerConfig configures the loopback status server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"false"`
	Host    string `mapstructure:"host" default:"127.0.0.1"`
	Port    int    `mapstructure:"port" default:"5226"`
}

// GetJournal returns the hook retaining recent log entries.
func (c *Config) GetJournal() *journal {
	if c.journal == nil {
		c.journal = NewJournal()
	}
	return c.journal
}

func (c *Config) GetWatchOptions() watch.Options {
	return watch.Options{
		Backend: c.Watch.Backend,
		Firestore: watch.FirestoreOptions{
			ProjectID:  c.Watch.Firestore.ProjectID,
			DatabaseID: c.Watch.Firestore.DatabaseID,
		},
		File: watch.FileOptions{
			Root:     c.Watch.File.Root,
			Debounce: c.Watch.File.Debounce,
		},
		HTTP: watch.HTTPOptions{
			Endpoint: c.Watch.HTTP.Endpoint,
			Token:    c.Watch.HTTP.Token,
			Interval: c.Watch.HTTP.Interval,
			Timeout:  c.Watch.HTTP.Timeout,
		},
	}
}

func (c *Config) GetSecrets() credentials.Secrets {
	return credentials.Secrets{
		Key:        c.Secrets.Key,
		IV:         c.Secrets.IV,
		Tag:        c.Secrets.Tag,
		Ciphertext: c.Secrets.Ciphertext,
		Salt:       c.Secrets.Salt,
	}
}

func (c *Config) GetPreAuthOptions() preauth.Options {
	return preauth.Options{
		ProfileDir: c.Profile.Dir,
		Bin:        c.Browser.Bin,
		NoSandbox:  c.Browser.NoSandbox,
		Timeout:    c.Browser.Timeout,
	}
}

func (c *Config) GetGateOptions() gate.Options {
	return gate.Options{
		ProfileDir:   c.Profile.Dir,
		Bin:          c.Browser.Bin,
		NoSandbox:    c.Browser.NoSandbox,
		PollInterval: c.Gate.PollInterval,
		Timeout:      c.Browser.Timeout,
	}
}

func (c *Config) GetFullSessionOptions() fullsession.Options {
	return fullsession.Options{
		ProfileDir: c.Profile.Dir,
		Bin:        c.Browser.Bin,
		NoSandbox:  c.Browser.NoSandbox,
		Timeout:    c.Browser.Timeout,
	}
}
