package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExampleYAML renders an example configuration file with every
// supported key at its default value
func ExampleYAML() ([]byte, error) {
	example := map[string]interface{}{
		"app": map[string]interface{}{
			"name":        "tradecrew",
			"version":     "0.1.0",
			"environment": "development",
			"log_level":   "info",
			"log_format":  "json",
		},
		"database": map[string]interface{}{
			"host":      "localhost",
			"port":      5432,
			"user":      "postgres",
			"password":  "",
			"database":  "tradecrew",
			"ssl_mode":  "disable",
			"pool_size": 10,
		},
		"redis": map[string]interface{}{
			"host": "localhost",
			"port": 6379,
			"db":   0,
		},
		"nats": map[string]interface{}{
			"url":    "nats://localhost:4222",
			"prefix": "tradecrew.",
		},
		"market": map[string]interface{}{
			"intraday_max_age_minutes": 15,
			"swing_max_age_days":       1,
			"max_provider_failures":    3,
			"circuit_cooldown_seconds": 120,
			"provider_timeout_seconds": 20,
			"min_sources":              1,
		},
		"trading": map[string]interface{}{
			"mode":                        "paper",
			"assets":                      []string{"BTC/USD", "SPY"},
			"exchange":                    "kraken",
			"max_retries":                 3,
			"initial_retry_delay_seconds": 1.0,
			"default_position_size":       0.01,
			"min_confidence":              0.60,
			"signal_timeout_seconds":      30,
		},
		"risk": map[string]interface{}{
			"max_daily_drawdown_pct":        0.05,
			"no_trade_event_window_minutes": 5,
			"min_history_days":              30,
			"max_correlated_exposure_pct":   0.10,
			"max_position_pct":              0.02,
		},
		"training": map[string]interface{}{
			"min_outcome_records":  500,
			"failure_streak_pause": 3,
			"dataset_output_dir":   "./data/datasets",
			"registry_path":        "./data/adapter_registry.json",
			"base_model":           "llama-3.1-8b",
			"replay_ratio":         0.30,
			"min_regime_ratio":     0.20,
			"seed":                 7,
		},
		"api": map[string]interface{}{
			"host": "0.0.0.0",
			"port": 8081,
		},
		"telegram": map[string]interface{}{
			"enabled": false,
		},
		"monitoring": map[string]interface{}{
			"prometheus_port": 9100,
			"enable_metrics":  true,
		},
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return nil, fmt.Errorf("failed to render example config: %w", err)
	}
	return data, nil
}

// WriteExample writes the example configuration file to path
func WriteExample(path string) error {
	data, err := ExampleYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
