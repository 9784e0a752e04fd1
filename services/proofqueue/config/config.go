package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the proofqueue service.
type Config struct {
	LogLevel       string
	HTTPPort       string
	MetricsAddr    string
	OTelEndpoint   string
	ProverBin      string
	SimLatency     time.Duration
	ReadyTimeout   time.Duration
	ChannelBuffer  int
	WebhookURL     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		HTTPPort:       v.GetString("http_port"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
		ProverBin:      v.GetString("prover_bin"),
		SimLatency:     v.GetDuration("sim_latency"),
		ReadyTimeout:   v.GetDuration("ready_timeout"),
		ChannelBuffer:  v.GetInt("channel_buffer"),
		WebhookURL:     v.GetString("webhook_url"),
		RateLimitRPS:   v.GetFloat64("rate_limit_rps"),
		RateLimitBurst: v.GetInt("rate_limit_burst"),
	}
}
