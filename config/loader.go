package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix is used when WithEnvPrefix is not given.
const DefaultEnvPrefix = "RESTKIT"

type loader struct {
	configFile string
	envFile    string
	envPrefix  string
	fs         FileSystem
}

// FileSystem is what the loader needs from the disk.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem reads the real disk. .env values never override variables
// already set in the environment.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderOption configures Load.
type LoaderOption func(*loader)

// WithConfigFile reads a YAML, JSON or TOML file. The file must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile loads a .env file into the environment first. The file must
// exist. Without this option ./.env is loaded when present.
func WithEnvFile(path string) LoaderOption {
	return func(l *loader) { l.envFile = path }
}

// WithEnvPrefix sets the prefix of the environment variables, e.g.
// "CATALOG" for CATALOG_BASE_URL.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *loader) { l.envPrefix = prefix }
}

// WithFileSystem replaces the disk access, mostly for tests.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(l *loader) { l.fs = fs }
}

// ErrFileNotFound is returned when an explicitly named file is missing.
var ErrFileNotFound = errors.New("config: file not found")

// Load reads defaults, then the config file, then the environment, and
// validates the result.
func Load(opts ...LoaderOption) (*Client, error) {
	l := &loader{envPrefix: DefaultEnvPrefix, fs: OSFileSystem{}}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configFile != "" {
		if !l.fs.Exists(l.configFile) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, l.configFile)
		}
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", l.configFile, err)
		}
	}

	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (l *loader) loadEnvFile() error {
	path := l.envFile
	if path == "" {
		if !l.fs.Exists(".env") {
			return nil
		}
		path = ".env"
	} else if !l.fs.Exists(path) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	if err := l.fs.LoadEnv(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}
