package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"authfuzz/internal/utils"
	apperrors "authfuzz/pkg/errors"
)

type SprayConfig struct {
	LoginPath     string
	UsernameField string
	PasswordField string
	Username      string
	CheckPath     string
	RatePerSecond float64
	SessionCookie string
}

type Config struct {
	Proxy              string
	CaptureLog         string
	ReportsDir         string
	ScanLogDir         string
	ResultsFile        string
	TargetsDir         string
	Timeout            time.Duration
	Concurrency        int
	MaxConcurrentScans int
	LogFile            string
	LogLevel           string
	Strategies         []string
	Hooks              []string
	SecListsRoot       string
	PayloadsRoot       string
	Spray              SprayConfig

	DBEnabled  bool
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
}

func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"proxy":                "http://127.0.0.1:8083",
		"capture_log":          "proxy_log.jsonl",
		"reports_dir":          "reports",
		"scan_log_dir":         "reports/logs",
		"results_file":         "outputs/results.json",
		"targets_dir":          "config/targets",
		"timeout":              "10s",
		"concurrency":          10,
		"max_concurrent_scans": 2,
		"log_file":             "",
		"log_level":            "info",
		"strategies":           []string{},
		"hooks":                []string{"summary"},
		"seclists_root":        "./SecLists",
		"payloads_root":        "./PayloadsAllTheThings",
		"spray.login_path":     "/login",
		"spray.username_field": "username",
		"spray.password_field": "password",
		"spray.username":       "admin",
		"spray.check_path":     "/",
		"spray.rate":           0.0,
		"spray.session_cookie": "PHPSESSID=fixme",
	}
}

// LoadConfig reads the optional config/authfuzz.yaml, AUTHFUZZ_* env vars
// and the DB_* env vars.
func LoadConfig() (*Config, error) {
	v, err := utils.NewViperConfigWithOptions(utils.ConfigOptions{
		ConfigPath:  utils.GetConfigPath(),
		ConfigName:  "authfuzz",
		ConfigType:  "yaml",
		EnvPrefix:   "AUTHFUZZ",
		DefaultsMap: Defaults(),
		Optional:    true,
	})
	if err != nil {
		return nil, apperrors.NewConfigError("file", utils.GetConfigPath(), err.Error())
	}
	if err := utils.ValidateConfig(v); err != nil {
		return nil, apperrors.NewConfigError("settings", nil, err.Error())
	}

	cfg := &Config{
		Proxy:              v.GetString("proxy"),
		CaptureLog:         v.GetString("capture_log"),
		ReportsDir:         v.GetString("reports_dir"),
		ScanLogDir:         v.GetString("scan_log_dir"),
		ResultsFile:        v.GetString("results_file"),
		TargetsDir:         v.GetString("targets_dir"),
		Timeout:            v.GetDuration("timeout"),
		Concurrency:        v.GetInt("concurrency"),
		MaxConcurrentScans: v.GetInt("max_concurrent_scans"),
		LogFile:            v.GetString("log_file"),
		LogLevel:           v.GetString("log_level"),
		Strategies:         splitList(v.GetStringSlice("strategies")),
		Hooks:              splitList(v.GetStringSlice("hooks")),
		SecListsRoot:       v.GetString("seclists_root"),
		PayloadsRoot:       v.GetString("payloads_root"),
		Spray: SprayConfig{
			LoginPath:     v.GetString("spray.login_path"),
			UsernameField: v.GetString("spray.username_field"),
			PasswordField: v.GetString("spray.password_field"),
			Username:      v.GetString("spray.username"),
			CheckPath:     v.GetString("spray.check_path"),
			RatePerSecond: v.GetFloat64("spray.rate"),
			SessionCookie: v.GetString("spray.session_cookie"),
		},
	}

	cfg.DBEnabled, _ = strconv.ParseBool(getenvDefault("DB_ENABLED", "false"))
	cfg.DBHost = getenvDefault("DB_HOST", "localhost")
	cfg.DBPort, err = strconv.Atoi(getenvDefault("DB_PORT", "5432"))
	if err != nil {
		cfg.DBPort = 5432
	}
	cfg.DBUser = getenvDefault("DB_USER", "authfuzz")
	cfg.DBPassword = getenvDefault("DB_PASSWORD", "authfuzz")
	cfg.DBName = getenvDefault("DB_NAME", "authfuzz")

	return cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
