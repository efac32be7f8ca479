package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigOptions holds configuration loading options
type ConfigOptions struct {
	ConfigPath  string
	ConfigName  string
	ConfigType  string
	EnvPrefix   string
	DefaultsMap map[string]interface{}
	// Optional tolerates a missing config file; env vars and defaults
	// still apply.
	Optional bool
}

// NewViperConfigWithOptions creates a Viper configuration with custom options
func NewViperConfigWithOptions(opts ConfigOptions) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType(opts.ConfigType)

	configPaths := []string{opts.ConfigPath}
	if opts.ConfigPath != "./config" {
		configPaths = append(configPaths, "./config")
	}
	configPaths = append(configPaths, "/etc/authfuzz", "$HOME/.authfuzz")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}
	v.SetConfigName(opts.ConfigName)

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	}

	for key, value := range opts.DefaultsMap {
		v.SetDefault(key, value)
	}

	log.Debugf("Searching for config file: %s in paths: %v", opts.ConfigName, configPaths)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if opts.Optional {
				log.Debugf("No %s config file, using defaults and environment", opts.ConfigName)
				return v, nil
			}
			return nil, fmt.Errorf("config file '%s' not found in paths: %v", opts.ConfigName, configPaths)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Infof("Loaded config file: %s", v.ConfigFileUsed())
	return v, nil
}

// ValidateConfig checks the settings every command relies on.
func ValidateConfig(v *viper.Viper) error {
	for _, field := range []string{"capture_log", "reports_dir", "results_file"} {
		if strings.TrimSpace(v.GetString(field)) == "" {
			return fmt.Errorf("configuration field '%s' must not be empty", field)
		}
	}
	if v.GetInt("concurrency") < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", v.GetInt("concurrency"))
	}
	if v.GetInt("max_concurrent_scans") < 1 {
		return fmt.Errorf("max_concurrent_scans must be at least 1, got %d", v.GetInt("max_concurrent_scans"))
	}
	if v.GetDuration("timeout") <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if v.GetFloat64("spray.rate") < 0 {
		return fmt.Errorf("spray.rate must not be negative")
	}
	return nil
}

// GetConfigPath returns the path where config files are expected to be found
func GetConfigPath() string {
	if path := os.Getenv("AUTHFUZZ_CONFIG_PATH"); path != "" {
		return path
	}
	return "./config"
}

// EnsureDirectoryExists creates a directory if it doesn't exist
func EnsureDirectoryExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}
	return nil
}
