package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FineTuneConfig holds fixed LoRA hyperparameters. Values are
// human-governed and never adjusted by the training loop.
type FineTuneConfig struct {
	LoraR                     int     `json:"lora_r"`
	LoraAlpha                 int     `json:"lora_alpha"`
	LoraDropout               float64 `json:"lora_dropout"`
	LearningRate              float64 `json:"learning_rate"`
	Epochs                    int     `json:"epochs"`
	BatchSize                 int     `json:"batch_size"`
	GradientAccumulationSteps int     `json:"gradient_accumulation_steps"`
	MaxSeqLength              int     `json:"max_seq_length"`
	Seed                      int64   `json:"seed"`
}

// DefaultFineTuneConfig returns the governed hyperparameter defaults
func DefaultFineTuneConfig() FineTuneConfig {
	return FineTuneConfig{
		LoraR:                     16,
		LoraAlpha:                 32,
		LoraDropout:               0.05,
		LearningRate:              2e-4,
		Epochs:                    3,
		BatchSize:                 4,
		GradientAccumulationSteps: 4,
		MaxSeqLength:              2048,
		Seed:                      42,
	}
}

// FineTuneRequest names the inputs of one adapter training run
type FineTuneRequest struct {
	AgentID         string
	BaseModel       string
	TrainJSONL      string
	ValidationJSONL string
	OutputDir       string
}

// FineTuner runs adapter-only training and returns the artifact path.
// Implementations wrap an external training backend.
type FineTuner interface {
	Run(ctx context.Context, req FineTuneRequest) (string, error)
}

// LocalFineTuner materializes the adapter artifact directory without
// invoking a training backend. It preserves the typed contract for
// environments where the GPU pipeline is unavailable.
type LocalFineTuner struct {
	cfg FineTuneConfig
	log zerolog.Logger
}

// NewLocalFineTuner creates a local fine tuner
func NewLocalFineTuner(cfg FineTuneConfig, log zerolog.Logger) *LocalFineTuner {
	return &LocalFineTuner{
		cfg: cfg,
		log: log.With().Str("component", "fine_tuner").Logger(),
	}
}

// Run creates the adapter artifact directory for the request
func (f *LocalFineTuner) Run(ctx context.Context, req FineTuneRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.AgentID == "" || req.BaseModel == "" {
		return "", fmt.Errorf("agent_id and base_model are required")
	}

	adapterPath := filepath.Join(req.OutputDir, fmt.Sprintf("%s_adapter", req.AgentID))
	if err := os.MkdirAll(adapterPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create adapter dir: %w", err)
	}

	f.log.Info().
		Str("agent_id", req.AgentID).
		Str("base_model", req.BaseModel).
		Str("train_jsonl", req.TrainJSONL).
		Str("validation_jsonl", req.ValidationJSONL).
		Interface("hyperparameters", f.cfg).
		Str("adapter_path", adapterPath).
		Msg("Fine-tune run completed")
	return adapterPath, nil
}
