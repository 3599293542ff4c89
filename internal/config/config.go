package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Gateway struct {
		AppID          string `yaml:"app_id"`
		MerchantID     string `yaml:"merchant_id"`
		APIURL         string `yaml:"api_url"`
		NotifyURL      string `yaml:"notify_url"`
		PrivateKeyPath string `yaml:"private_key_path"`
		PublicKeyPath  string `yaml:"public_key_path"`
	} `yaml:"gateway"`
	Notify struct {
		MaxAttempts           int   `yaml:"max_attempts"`
		SweepIntervalSeconds  int64 `yaml:"sweep_interval_seconds"`
		QueueSize             int   `yaml:"queue_size"`
		Workers               int   `yaml:"workers"`
		ProcessTimeoutSeconds int64 `yaml:"process_timeout_seconds"`
	} `yaml:"notify"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Gateway.AppID == "" || cfg.Gateway.APIURL == "" {
		return nil, errors.New("gateway config is incomplete")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Notify.MaxAttempts <= 0 {
		cfg.Notify.MaxAttempts = 3
	}
	if cfg.Notify.SweepIntervalSeconds <= 0 {
		cfg.Notify.SweepIntervalSeconds = 300
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 4
	}
	if cfg.Notify.ProcessTimeoutSeconds <= 0 {
		cfg.Notify.ProcessTimeoutSeconds = 10
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("GATEWAY_APP_ID"); v != "" {
		cfg.Gateway.AppID = v
	}
	if v := os.Getenv("GATEWAY_MERCHANT_ID"); v != "" {
		cfg.Gateway.MerchantID = v
	}
	if v := os.Getenv("GATEWAY_API_URL"); v != "" {
		cfg.Gateway.APIURL = v
	}
	if v := os.Getenv("GATEWAY_NOTIFY_URL"); v != "" {
		cfg.Gateway.NotifyURL = v
	}
	if v := os.Getenv("GATEWAY_PRIVATE_KEY_PATH"); v != "" {
		cfg.Gateway.PrivateKeyPath = v
	}
	if v := os.Getenv("GATEWAY_PUBLIC_KEY_PATH"); v != "" {
		cfg.Gateway.PublicKeyPath = v
	}
	if v := os.Getenv("NOTIFY_MAX_ATTEMPTS"); v != "" {
		cfg.Notify.MaxAttempts = atoiOr(cfg.Notify.MaxAttempts, v)
	}
	if v := os.Getenv("NOTIFY_SWEEP_INTERVAL_SECONDS"); v != "" {
		cfg.Notify.SweepIntervalSeconds = atoi64Or(cfg.Notify.SweepIntervalSeconds, v)
	}
	if v := os.Getenv("NOTIFY_QUEUE_SIZE"); v != "" {
		cfg.Notify.QueueSize = atoiOr(cfg.Notify.QueueSize, v)
	}
	if v := os.Getenv("NOTIFY_WORKERS"); v != "" {
		cfg.Notify.Workers = atoiOr(cfg.Notify.Workers, v)
	}
	if v := os.Getenv("NOTIFY_PROCESS_TIMEOUT_SECONDS"); v != "" {
		cfg.Notify.ProcessTimeoutSeconds = atoi64Or(cfg.Notify.ProcessTimeoutSeconds, v)
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
