// Package config содержит логику чтения конфигурации аукционного сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Режимы обработки запросов на покупку.
const (
	PurchaseProcessingAutomatic = "Automatic"
	PurchaseProcessingManual    = "Manual"
)

// Config содержит параметры конфигурации аукционного сервиса.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	SchedulerAddress string `env:"SCHEDULER_ADDRESS"`
	NatsAddress      string `env:"NATS_ADDRESS"`
	CallbackBaseURL  string `env:"CALLBACK_BASE_URL"`

	BidIncrement         int64  `env:"BID_INCREMENT"`
	BidAdditionalSeconds int    `env:"BID_ADDITIONAL_SECONDS"`
	CountdownLeadSeconds int    `env:"COUNTDOWN_LEAD_SECONDS"`
	PurchaseProcessing   string `env:"PURCHASE_PROCESSING"`
}

// IsAutomaticPurchaseProcessing сообщает, обрабатываются ли запросы на покупку автоматически.
func (c *Config) IsAutomaticPurchaseProcessing() bool {
	return c.PurchaseProcessing == PurchaseProcessingAutomatic
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSchedulerAddress := cfg.SchedulerAddress
	envNatsAddress := cfg.NatsAddress
	envCallbackBaseURL := cfg.CallbackBaseURL
	envBidIncrement := cfg.BidIncrement
	envBidAdditionalSeconds := cfg.BidAdditionalSeconds
	envCountdownLeadSeconds := cfg.CountdownLeadSeconds
	envPurchaseProcessing := cfg.PurchaseProcessing

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SchedulerAddress, "s", "", "task scheduler address")
	flag.StringVar(&cfg.NatsAddress, "n", "", "NATS address for user alerts")
	flag.StringVar(&cfg.CallbackBaseURL, "c", "", "externally reachable base URL for scheduler callbacks")
	flag.Int64Var(&cfg.BidIncrement, "i", 25, "proxy bid increment in currency units")
	flag.IntVar(&cfg.BidAdditionalSeconds, "e", 45, "bid window extension in seconds")
	flag.IntVar(&cfg.CountdownLeadSeconds, "l", 60, "countdown lead before drop start in seconds")
	flag.StringVar(&cfg.PurchaseProcessing, "p", PurchaseProcessingAutomatic, "purchase request processing mode (Automatic or Manual)")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSchedulerAddress != "" {
		cfg.SchedulerAddress = envSchedulerAddress
	}
	if envNatsAddress != "" {
		cfg.NatsAddress = envNatsAddress
	}
	if envCallbackBaseURL != "" {
		cfg.CallbackBaseURL = envCallbackBaseURL
	}
	if envBidIncrement != 0 {
		cfg.BidIncrement = envBidIncrement
	}
	if envBidAdditionalSeconds != 0 {
		cfg.BidAdditionalSeconds = envBidAdditionalSeconds
	}
	if envCountdownLeadSeconds != 0 {
		cfg.CountdownLeadSeconds = envCountdownLeadSeconds
	}
	if envPurchaseProcessing != "" {
		cfg.PurchaseProcessing = envPurchaseProcessing
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PurchaseProcessing != PurchaseProcessingAutomatic && cfg.PurchaseProcessing != PurchaseProcessingManual {
		return nil, fmt.Errorf("unknown purchase processing mode: %s", cfg.PurchaseProcessing)
	}

	return cfg, nil
}
