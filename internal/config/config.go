package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type Redis struct {
	URL string `mapstructure:"url"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	WebhookEvents string `mapstructure:"webhook-events"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

type Provider struct {
	BaseURL       string `mapstructure:"base-url"`
	APIKey        string `mapstructure:"api-key"`
	ClientSecret  string `mapstructure:"client-secret"`
	WebhookSecret string `mapstructure:"webhook-secret"`
	TimeoutMs     int    `mapstructure:"timeout-ms"`
}

// StatusMapping overrides a single entry of the built-in provider status
// table. Raw is matched case-insensitively.
type StatusMapping struct {
	Raw             string `mapstructure:"raw"`
	Status          string `mapstructure:"status"`
	NeedsValidation bool   `mapstructure:"needs-validation"`
}

type Webhook struct {
	LockTTLSeconds     int             `mapstructure:"lock-ttl-seconds"`
	LockWaitSeconds    int             `mapstructure:"lock-wait-seconds"`
	StatusMapOverrides []StatusMapping `mapstructure:"status-map-overrides"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Provider Provider `mapstructure:"provider"`
	Webhook  Webhook  `mapstructure:"webhook"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
