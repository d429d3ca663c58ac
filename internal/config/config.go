// Package config loads application configuration from environment variables.
package config

import (
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int

	// TokenSecret keys the credential validation token.  Rotating it
	// invalidates every issued credential.
	TokenSecret string
	// HoldWindow is how long an unpaid reservation holds capacity.
	HoldWindow time.Duration
	// SweepInterval runs the background sweeper; 0 leaves sweeping to
	// reservation attempts only.
	SweepInterval time.Duration
	// CheckInAcceptPending admits credentials whose reservation is still
	// awaiting payment.
	CheckInAcceptPending bool
	OccupancyCacheTTL    time.Duration

	RabbitURL        string // empty disables publishing
	NotificationLog  string // file the notification consumer appends to
	PubNubPublishKey string // empty disables live occupancy push
	PubNubSubKey     string
	PubNubUserID     string
	OTelEndpoint     string // empty disables tracing
	ServiceName      string

	// PaymentSignalSecret authenticates the payment collaborator on the
	// signal endpoint; empty disables the endpoint.
	PaymentSignalSecret string
}

// Load reads configuration values from environment variables.  Every
// missing required variable is reported in the returned error.
func Load() (Config, error) {
	var r required
	cfg := Config{
		Env:            r.str("APP_ENV"),
		Port:           r.str("APP_PORT"),
		DBUser:         r.str("DB_USER"),
		DBPass:         envStr("DB_PASS", ""),
		DBHost:         r.str("DB_HOST"),
		DBPort:         r.str("DB_PORT"),
		DBName:         r.str("DB_NAME"),
		JWTSecret:      r.str("JWT_SECRET"),
		AccessTTLMin:   r.int("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: r.int("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     r.int("BCRYPT_COST"),
		TokenSecret:    r.str("TICKET_TOKEN_SECRET"),

		HoldWindow:           envDur("RESERVATION_HOLD_WINDOW", 15*time.Minute),
		SweepInterval:        envDur("SWEEP_INTERVAL", 0),
		CheckInAcceptPending: envBool("CHECKIN_ACCEPT_PENDING", false),
		OccupancyCacheTTL:    envDur("OCCUPANCY_CACHE_TTL", 5*time.Second),

		RabbitURL:        envStr("RABBITMQ_URL", ""),
		NotificationLog:  envStr("NOTIFICATION_LOG", "logs/notifications.log"),
		PubNubPublishKey: envStr("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubKey:     envStr("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubUserID:     envStr("PUBNUB_USER_ID", "event-ticketing"),
		OTelEndpoint:     envStr("OTEL_ENDPOINT", ""),
		ServiceName:      envStr("SERVICE_NAME", "event-ticketing"),

		PaymentSignalSecret: envStr("PAYMENT_SIGNAL_SECRET", ""),
	}
	if err := r.err(); err != nil {
		return Config{}, err
	}
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = 15 * time.Minute
	}
	return cfg, nil
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }
