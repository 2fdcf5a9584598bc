package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinUploadTimeout is the shortest wait allowed for an upload; large
// transcript exports take a while to ingest.
const MinUploadTimeout = 120 * time.Second

const (
	KeyAPIBase         = "api_base"
	KeyHTTPTimeout     = "http_timeout"
	KeyUploadTimeout   = "upload_timeout"
	KeyAnalysisTimeout = "analysis_timeout"
	KeyRetryMaxElapsed = "retry_max_elapsed"
	KeyRateLimit       = "rate_limit"
	KeyPort            = "port"
	KeyOutput          = "output"
)

type Config struct {
	APIBase       string        `mapstructure:"api_base"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	// AnalysisTimeout bounds analysis runs; 0 waits as long as the backend
	// takes, since a batch makes one model call per conversation.
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout"`
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Port            string        `mapstructure:"port"`
	Output          string        `mapstructure:"output"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIBase, "http://localhost:8000/api")
	v.SetDefault(KeyHTTPTimeout, 30*time.Second)
	v.SetDefault(KeyUploadTimeout, MinUploadTimeout)
	v.SetDefault(KeyAnalysisTimeout, time.Duration(0))
	v.SetDefault(KeyRetryMaxElapsed, 10*time.Second)
	v.SetDefault(KeyRateLimit, 0.0)
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyOutput, "table")
}

// New returns a viper instance reading INSIGHTS_* env vars (after .env is
// loaded) and, when configFile is set, that file.
func New(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load() // loads .env

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(KeyPort, "INSIGHTS_PORT", "PORT")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		APIBase:         strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIBase)), "/"),
		HTTPTimeout:     v.GetDuration(KeyHTTPTimeout),
		UploadTimeout:   v.GetDuration(KeyUploadTimeout),
		AnalysisTimeout: v.GetDuration(KeyAnalysisTimeout),
		RetryMaxElapsed: v.GetDuration(KeyRetryMaxElapsed),
		RateLimit:       v.GetFloat64(KeyRateLimit),
		Port:            v.GetString(KeyPort),
		Output:          strings.ToLower(v.GetString(KeyOutput)),
	}
	return cfg, cfg.normalize()
}

// Load is New followed by FromViper.
func Load(configFile string) (Config, error) {
	v, err := New(configFile)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

func (c *Config) normalize() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base %q: want an absolute http(s) URL", c.APIBase)
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.UploadTimeout < MinUploadTimeout {
		c.UploadTimeout = MinUploadTimeout
	}
	if c.AnalysisTimeout < 0 {
		c.AnalysisTimeout = 0
	}
	if c.RetryMaxElapsed < 0 {
		c.RetryMaxElapsed = 0
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q: want table, json or yaml", c.Output)
	}
	return nil
}
