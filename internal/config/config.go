package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const DefaultMpesaBaseURL = "https://sandbox.safaricom.co.ke"

type Config struct {
	Port   string
	AppEnv string

	MongoURL string
	DBName   string

	Mpesa MpesaConfig

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	OperatorJWTSecret string
}

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
}

// Load reads .env (if present) and the process environment. Every
// credential M-Pesa and MongoDB need is required.
func Load() (*Config, error) {
	// a missing .env is fine, the variables may come from the environment
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "production"),
		MongoURL: os.Getenv("MONGO_URL"),
		DBName:   os.Getenv("DB_NAME"),
		Mpesa: MpesaConfig{
			BaseURL:        getEnv("MPESA_BASE_URL", DefaultMpesaBaseURL),
			ConsumerKey:    os.Getenv("CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("CONSUMER_SECRET"),
			ShortCode:      os.Getenv("BUSINESS_SHORT_CODE"),
			PassKey:        os.Getenv("PASSKEY"),
			CallbackURL:    os.Getenv("CALLBACK_URL"),
		},
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "payment-results"),
		OperatorJWTSecret: os.Getenv("OPERATOR_JWT_SECRET"),
	}

	required := []struct {
		name, value string
	}{
		{"CONSUMER_KEY", cfg.Mpesa.ConsumerKey},
		{"CONSUMER_SECRET", cfg.Mpesa.ConsumerSecret},
		{"BUSINESS_SHORT_CODE", cfg.Mpesa.ShortCode},
		{"PASSKEY", cfg.Mpesa.PassKey},
		{"CALLBACK_URL", cfg.Mpesa.CallbackURL},
		{"MONGO_URL", cfg.MongoURL},
		{"DB_NAME", cfg.DBName},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
