package kafka_config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Brokers:              []string{"localhost:9092"},
			ProducerMaxAttempts:  DefaultProducerMaxAttempts,
			ProducerBatchTimeout: DefaultProducerBatchTimeout,
			ProducerRequireAcks:  DefaultProducerRequireAcks,
			ProducerCompression:  DefaultProducerCompression,
			ConsumerStartOffset:  DefaultConsumerStartOffset,
			ConsumerMaxWait:      DefaultConsumerMaxWait,
			ConsumerMaxRetries:   DefaultConsumerMaxRetries,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty broker", func(c *Config) { c.Brokers = []string{""} }, "Broker 0"},
		{"bad compression", func(c *Config) { c.ProducerCompression = "brotli" }, "ProducerCompression"},
		{"bad acks", func(c *Config) { c.ProducerRequireAcks = 2 }, "ProducerRequireAcks"},
		{"bad offset", func(c *Config) { c.ConsumerStartOffset = 5 }, "ConsumerStartOffset"},
		{"zero wait", func(c *Config) { c.ConsumerMaxWait = 0 * time.Second }, "ConsumerMaxWait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
