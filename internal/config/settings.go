package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	Pass string `mapstructure:"pass"`
}

// StakeThresholds holds the minimum stake required per request kind.
type StakeThresholds struct {
	IsAlive    float64 `mapstructure:"is_alive"`
	Completion float64 `mapstructure:"completion"`
	Image      float64 `mapstructure:"image"`
	Embedding  float64 `mapstructure:"embedding"`
}

type AdmissionConfig struct {
	WindowMinutes     int             `mapstructure:"window_minutes"`
	MaxRequests       int             `mapstructure:"max_requests"`
	AllowUnregistered bool            `mapstructure:"allow_unregistered"`
	Stake             StakeThresholds `mapstructure:"stake"`
}

type ProviderKeys struct {
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	GroqAPIKey      string `mapstructure:"groq_api_key"`
	GroqBaseURL     string `mapstructure:"groq_base_url"`
	AWSRegion       string `mapstructure:"aws_region"`
	AWSAccessKey    string `mapstructure:"aws_access_key"`
	AWSSecretKey    string `mapstructure:"aws_secret_key"`
	OllamaHost      string `mapstructure:"ollama_host"`
}

type DispatchConfig struct {
	// FlushSize is the number of deltas buffered before a flush to the sink.
	FlushSize int `mapstructure:"flush_size"`
	// ProviderTimeoutSecs bounds a single upstream streaming call.
	ProviderTimeoutSecs int `mapstructure:"provider_timeout_secs"`
}

func (d DispatchConfig) ProviderTimeout() time.Duration {
	return time.Duration(d.ProviderTimeoutSecs) * time.Second
}

type EmbeddingConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type Settings struct {
	Env       string          `mapstructure:"env"`
	Debug     bool            `mapstructure:"debug"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Providers ProviderKeys    `mapstructure:"providers"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	settings.applyDefaults()

	return &settings, nil
}

func (s *Settings) applyDefaults() {
	if s.Server.Port == 0 {
		s.Server.Port = 8098
	}
	if s.Admission.WindowMinutes == 0 {
		s.Admission.WindowMinutes = 5
	}
	if s.Admission.MaxRequests == 0 {
		s.Admission.MaxRequests = 30
	}
	if s.Dispatch.FlushSize == 0 {
		s.Dispatch.FlushSize = 1
	}
	if s.Dispatch.ProviderTimeoutSecs == 0 {
		s.Dispatch.ProviderTimeoutSecs = 120
	}
	if s.Embedding.BatchSize == 0 {
		s.Embedding.BatchSize = 10
	}
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
