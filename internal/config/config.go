package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr       string `mapstructure:"addr"`
		BaseURL    string `mapstructure:"base_url"`
		ExportDir  string `mapstructure:"export_dir"`
		AdminToken string `mapstructure:"admin_token"`
	} `mapstructure:"server"`
	Store struct {
		Driver string `mapstructure:"driver"` // "postgres" or "memory"
	} `mapstructure:"store"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	LLM struct {
		APIKey         string `mapstructure:"api_key"`
		Model          string `mapstructure:"model"`
		BaseURL        string `mapstructure:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"llm"`
	CTR struct {
		MinViews   int     `mapstructure:"min_views"`
		Confidence float64 `mapstructure:"confidence"`
	} `mapstructure:"ctr"`
	Fix struct {
		MaxAttempts int `mapstructure:"max_attempts"`
	} `mapstructure:"fix"`
	Audit AuditConfig `mapstructure:"audit"`
}

// AuditConfig carries the auditor's rule bounds. Defaults follow Google
// SERP display limits and the tool's house content standards.
type AuditConfig struct {
	TitleMin          int     `mapstructure:"title_min"`
	TitleMax          int     `mapstructure:"title_max"`
	DescMin           int     `mapstructure:"desc_min"`
	DescMax           int     `mapstructure:"desc_max"`
	MinH2             int     `mapstructure:"min_h2"`
	MinWords          int     `mapstructure:"min_words"`
	MinFAQ            int     `mapstructure:"min_faq"`
	MaxKeywordDensity float64 `mapstructure:"max_keyword_density"`
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("server.export_dir", "exports")
	viper.SetDefault("store.driver", "postgres")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("llm.model", "gpt-4.1-mini")
	viper.SetDefault("llm.timeout_seconds", 60)
	viper.SetDefault("ctr.min_views", 20)
	viper.SetDefault("ctr.confidence", 0.95)
	viper.SetDefault("fix.max_attempts", 3)
	viper.SetDefault("audit.title_min", 30)
	viper.SetDefault("audit.title_max", 60)
	viper.SetDefault("audit.desc_min", 70)
	viper.SetDefault("audit.desc_max", 160)
	viper.SetDefault("audit.min_h2", 3)
	viper.SetDefault("audit.min_words", 350)
	viper.SetDefault("audit.min_faq", 3)
	viper.SetDefault("audit.max_keyword_density", 3.0)
}

// LoadConfig loads the configuration from a file and the environment.
// path may name a specific config file; when empty the usual lookup
// locations are searched and a missing file falls back to defaults.
func LoadConfig(path string) (*Config, error) {
	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvPrefix("landingops")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Server.BaseURL = strings.TrimRight(strings.TrimSpace(config.Server.BaseURL), "/")

	return &config, nil
}
