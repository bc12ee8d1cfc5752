package main

import "time"

type Config struct {
	BufferSize                int           `env:"BUFFER_SIZE,default=256"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	TypingTTL                 time.Duration `env:"TYPING_TTL,default=3s"`
	SweepInterval             time.Duration `env:"SWEEP_INTERVAL,default=1s"`
	SendRetryDelay            time.Duration `env:"SEND_RETRY_DELAY,default=1s"`
	MetricInterval            time.Duration `env:"METRIC_INTERVAL,default=5s"`
	TypingRate                float64       `env:"TYPING_RATE,default=1"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel                  string        `env:"LOG_LEVEL,default=INFO"`

	// Identity. TOKEN wins over USER_ID/USER_NAME when both are set.
	SigningKey        string        `env:"SIGNING_KEY,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	Token             string        `env:"TOKEN"`
	UserID            string        `env:"USER_ID"`
	UserName          string        `env:"USER_NAME"`
	UserColor         string        `env:"USER_COLOR,default=#3b82f6"`

	// Empty TRANSPORT_URL means the in-process hub.
	TransportURL string `env:"TRANSPORT_URL"`
	ServeAddr    string `env:"SERVE_ADDR"`
	DebugAddr    string `env:"DEBUG_ADDR"`
	Colours      bool   `env:"COLOURS,default=true"`
}
