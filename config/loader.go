package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables which override file settings, e.g.
// STAGEMETRICS_ENDPOINT_URL.
const EnvPrefix = "STAGEMETRICS"

var settingKeys = []string{
	"endpoint_url",
	"username",
	"password",
	"trust_self_signed",
	"controller_name",
}

// LoaderConfig holds optional file locations for LoadSettings.
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for LoadSettings.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets the YAML (or JSON, TOML) settings file.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets a .env file whose variables are loaded before the environment is consulted.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// LoadSettings reads settings from an optional file, then applies STAGEMETRICS_* environment
// variables on top. A missing file is not an error; an unreadable one is.
func LoadSettings(opts ...LoaderOption) (Settings, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	v := viper.New()
	for _, k := range settingKeys {
		v.SetDefault(k, "")
	}
	v.SetDefault("trust_self_signed", false)

	if lc.ConfigFile != "" && fileExists(lc.ConfigFile) {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("config: failed to read %s: %w", lc.ConfigFile, err)
		}
	}

	if lc.EnvFile != "" && fileExists(lc.EnvFile) {
		// godotenv never overrides variables which are already set.
		if err := godotenv.Load(lc.EnvFile); err != nil {
			logrus.WithError(err).WithField("file", lc.EnvFile).Warn("Failed to load .env file")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range settingKeys {
		if err := v.BindEnv(k); err != nil {
			return Settings{}, fmt.Errorf("config: failed to bind %s: %w", k, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: failed to unmarshal settings: %w", err)
	}
	return s, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
