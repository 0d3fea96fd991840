package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var AppEnv Config

type Config struct {
	Port        string
	Environment string

	MongoURI        string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AdminEmail    string
	AdminPassword string

	FrontendURL string
	UploadDir   string

	Currency    string
	DeliveryFee decimal.Decimal

	Stripe   StripeConfig
	Razorpay RazorpayConfig

	// RedirectAbandonPolicy is "delete" (default) or "cancel".
	RedirectAbandonPolicy string

	RedisAddr     string
	RedisPassword string

	RabbitMQURL      string
	OrderEventsQueue string
	ProviderTimeout  time.Duration
	RequestDBTimeout time.Duration
}

type StripeConfig struct {
	SecretKey string
	APIURL    string
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	APIURL    string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = Config{
		Port:        getEnvOrDefault("PORT", "4000"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		MongoURI:        getEnvOrDefault("MONGO_URI", ""),
		DBName:          getEnvOrDefault("DB_NAME", "e-commerce"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 60, time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),

		AdminEmail:    getEnvOrDefault("ADMIN_EMAIL", ""),
		AdminPassword: getEnvOrDefault("ADMIN_PASSWORD", ""),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		UploadDir:   getEnvOrDefault("UPLOAD_DIR", "./public"),

		Currency:    getEnvOrDefault("CURRENCY", "inr"),
		DeliveryFee: getDecimalEnv("DELIVERY_FEE", decimal.NewFromInt(10)),

		Stripe: StripeConfig{
			SecretKey: getEnvOrDefault("STRIPE_SECRET_KEY", ""),
			APIURL:    getEnvOrDefault("STRIPE_API_URL", "https://api.stripe.com"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     getEnvOrDefault("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnvOrDefault("RAZORPAY_KEY_SECRET", ""),
			APIURL:    getEnvOrDefault("RAZORPAY_API_URL", "https://api.razorpay.com"),
		},

		RedirectAbandonPolicy: getEnvOrDefault("REDIRECT_ABANDON_POLICY", "delete"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		RabbitMQURL:      getEnvOrDefault("RABBITMQ_URL", ""),
		OrderEventsQueue: getEnvOrDefault("ORDER_EVENTS_QUEUE", "order_events"),
		ProviderTimeout:  getDurationEnv("PROVIDER_TIMEOUT", 10, time.Second),
		RequestDBTimeout: getDurationEnv("DB_TIMEOUT", 5, time.Second),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
