package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port      string
	MongoURI  string
	DBName    string
	JWTSecret string

	RedisAddr          string
	RedisPassword      string
	RestaurantCacheTTL time.Duration

	RabbitMQURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	CORSOrigins []string

	ConfirmDelay  time.Duration
	PrepareDelay  time.Duration
	DeliveryDelay time.Duration
	ETAWindow     time.Duration
	SweepInterval time.Duration
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	return Config{
		Port:      getEnvOrDefault("PORT", "8080"),
		MongoURI:  getEnvOrDefault("MONGO_URI", ""),
		DBName:    getEnvOrDefault("DB_NAME", "orderflow"),
		JWTSecret: getEnvOrDefault("JWT_SECRET", ""),

		RedisAddr:          getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:      getEnvOrDefault("REDIS_PASSWORD", ""),
		RestaurantCacheTTL: getDurationEnv("RESTAURANT_CACHE_TTL", 10, time.Minute),

		RabbitMQURL: getEnvOrDefault("RABBITMQ_URL", ""),

		SMTPHost:     getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUsername: getEnvOrDefault("SMTP_USERNAME", ""),
		SMTPPassword: getEnvOrDefault("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", ""),

		CORSOrigins: getListEnv("CORS_ORIGINS", []string{"*"}),

		ConfirmDelay:  getDurationEnv("CONFIRM_DELAY", 60, time.Second),
		PrepareDelay:  getDurationEnv("PREPARE_DELAY", 300, time.Second),
		DeliveryDelay: getDurationEnv("DELIVERY_DELAY", 30, time.Minute),
		ETAWindow:     getDurationEnv("ETA_WINDOW", 45, time.Minute),
		SweepInterval: getDurationEnv("SCHEDULER_SWEEP_INTERVAL", 15, time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue)) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
