package agents

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
)

// SourceScore is one cited sentiment reading inside a research bundle
type SourceScore struct {
	Source string  `json:"source"` // e.g. "news:reuters"
	Score  float64 `json:"score"`  // raw sentiment, clamped on ingestion
}

// ResearchBundle carries validated research context for one task.
// Callers are responsible for verifying sources before injection.
type ResearchBundle struct {
	Asset     string           `json:"asset"`
	Timeframe models.Timeframe `json:"timeframe"`
	Scores    []SourceScore    `json:"scores"`
}

// ResearchAgent emits sentiment signals from cited sources. Without a
// validated bundle it abstains rather than guessing.
type ResearchAgent struct {
	adapterVersion string
	buyThreshold   float64
	log            zerolog.Logger
}

// NewResearchAgent creates a research agent
func NewResearchAgent(adapterVersion string, log zerolog.Logger) *ResearchAgent {
	return &ResearchAgent{
		adapterVersion: adapterVersion,
		buyThreshold:   0.2,
		log:            log.With().Str("component", ResearchAgentID).Logger(),
	}
}

// Run emits a sentiment signal for the bundle, abstaining when the
// bundle is nil or carries no scored sources.
func (a *ResearchAgent) Run(taskID string, bundle *ResearchBundle, regime models.MarketRegime) models.AgentResponse {
	start := time.Now()

	if bundle == nil || len(bundle.Scores) == 0 {
		a.log.Info().Str("task_id", taskID).Msg("Research agent abstaining")
		asset := "UNKNOWN"
		timeframe := models.Timeframe1h
		if bundle != nil {
			if bundle.Asset != "" {
				asset = bundle.Asset
			}
			if bundle.Timeframe.Valid() {
				timeframe = bundle.Timeframe
			}
		}
		return models.AgentResponse{
			AgentID:   ResearchAgentID,
			Timestamp: time.Now().UTC(),
			TaskID:    taskID,
			Status:    models.StatusAbstain,
			Payload: models.SentimentSignal{
				BaseSignal: models.BaseSignal{Asset: asset, Direction: models.DirectionAbstain, Timeframe: timeframe},
				Score:      0,
				Confidence: 0,
				Sources:    []string{},
			},
			Confidence:     0,
			Reasoning:      "No validated source bundle provided; abstaining.",
			DataSources:    []string{},
			LatencyMS:      elapsedMS(start),
			AdapterVersion: a.adapterVersion,
			MarketRegime:   regime,
		}
	}

	sum := 0.0
	sources := make([]string, 0, len(bundle.Scores))
	for _, s := range bundle.Scores {
		sum += ClampSentiment(s.Score)
		sources = append(sources, s.Source)
	}
	score := ClampSentiment(sum / float64(len(bundle.Scores)))

	direction := models.DirectionHold
	switch {
	case score >= a.buyThreshold:
		direction = models.DirectionBuy
	case score <= -a.buyThreshold:
		direction = models.DirectionSell
	}

	confidence := score
	if confidence < 0 {
		confidence = -confidence
	}

	a.log.Info().
		Str("task_id", taskID).
		Str("direction", string(direction)).
		Float64("score", score).
		Msg("Sentiment signal emitted")

	return models.AgentResponse{
		AgentID:   ResearchAgentID,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Status:    models.StatusSuccess,
		Payload: models.SentimentSignal{
			BaseSignal: models.BaseSignal{Asset: bundle.Asset, Direction: direction, Timeframe: bundle.Timeframe},
			Score:      score,
			Confidence: confidence,
			Sources:    sources,
		},
		Confidence:     confidence,
		Reasoning:      fmt.Sprintf("Aggregated sentiment %.4f across %d cited sources.", score, len(sources)),
		DataSources:    sources,
		LatencyMS:      elapsedMS(start),
		AdapterVersion: a.adapterVersion,
		MarketRegime:   regime,
	}
}
