// Package training implements the autonomous retraining loop: holdout
// evaluation, the promotion gate, shadow-window resolution, run
// locking, and the adapter metadata registry.
package training

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"

	"github.com/tradecrew/tradecrew/internal/models"
)

// HoldoutPrediction is a single holdout prediction row used for
// metric computation.
type HoldoutPrediction struct {
	Regime              models.MarketRegime
	PredictedProfitable bool
	ActualProfitable    bool
	Confidence          float64
	Abstained           bool
}

// Evaluator computes holdout metrics and applies the hard promotion
// criteria for champion versus candidate adapters.
type Evaluator struct {
	rng *rand.Rand
}

// NewEvaluator creates an evaluator with a deterministic subsampling seed
func NewEvaluator(seed int64) *Evaluator {
	return &Evaluator{rng: rand.New(rand.NewSource(seed))}
}

// ComputeMetrics computes the required evaluation metrics from holdout
// predictions. Accuracy counts only non-abstained rows; abstained rows
// contribute a 0.5 probability to the Brier score.
func (e *Evaluator) ComputeMetrics(predictions []HoldoutPrediction) (models.EvaluationMetrics, error) {
	if len(predictions) == 0 {
		return models.EvaluationMetrics{}, fmt.Errorf("predictions cannot be empty")
	}

	total := len(predictions)
	var signalRows []HoldoutPrediction
	for _, row := range predictions {
		if !row.Abstained {
			signalRows = append(signalRows, row)
		}
	}

	matches := 0
	for _, row := range signalRows {
		if row.PredictedProfitable == row.ActualProfitable {
			matches++
		}
	}
	signalAccuracy := float64(matches) / float64(maxInt(1, len(signalRows)))
	abstainRate := float64(total-len(signalRows)) / float64(total)

	brierSum := 0.0
	for _, row := range predictions {
		var probability float64
		switch {
		case row.Abstained:
			probability = 0.5
		case row.PredictedProfitable:
			probability = row.Confidence
		default:
			probability = 1.0 - row.Confidence
		}
		target := 0.0
		if row.ActualProfitable {
			target = 1.0
		}
		brierSum += (probability - target) * (probability - target)
	}

	regimeAccuracy := make(map[models.MarketRegime]float64, len(models.Regimes))
	for _, regime := range models.Regimes {
		regimeMatches, regimeTotal := 0, 0
		for _, row := range signalRows {
			if row.Regime != regime {
				continue
			}
			regimeTotal++
			if row.PredictedProfitable == row.ActualProfitable {
				regimeMatches++
			}
		}
		if regimeTotal == 0 {
			regimeAccuracy[regime] = 0.0
			continue
		}
		regimeAccuracy[regime] = float64(regimeMatches) / float64(regimeTotal)
	}

	return models.EvaluationMetrics{
		SignalAccuracy:      signalAccuracy,
		AbstainRate:         abstainRate,
		BrierScore:          brierSum / float64(total),
		RegimeAccuracy:      regimeAccuracy,
		ConsistencyVariance: e.consistencyVariance(predictions),
	}, nil
}

// EvaluatePromotion applies the non-negotiable promotion criteria.
// Every violated criterion contributes one reason string.
func (e *Evaluator) EvaluatePromotion(champion, candidate models.EvaluationMetrics, championDatasetVersion, candidateDatasetVersion string) models.PromotionDecision {
	var failures []string
	if candidate.SignalAccuracy-champion.SignalAccuracy < 0.02 {
		failures = append(failures, "Signal accuracy improvement is below 2%.")
	}
	if candidate.BrierScore > champion.BrierScore {
		failures = append(failures, "Brier score degraded versus champion.")
	}
	if candidate.AbstainRate < 0.15 || candidate.AbstainRate > 0.40 {
		failures = append(failures, "Candidate abstain rate is outside healthy 15%-40% range.")
	}
	for _, regime := range models.Regimes {
		if champion.RegimeAccuracy[regime]-candidate.RegimeAccuracy[regime] > 0.05 {
			failures = append(failures, fmt.Sprintf("Regime degradation exceeds 5%% for %s.", regime))
		}
	}
	if candidate.ConsistencyVariance >= 0.05 {
		failures = append(failures, "Candidate consistency variance is not stable (<0.05 required).")
	}
	if extractNumericVersion(candidateDatasetVersion) <= extractNumericVersion(championDatasetVersion) {
		failures = append(failures, "Candidate dataset_version must be newer than champion.")
	}
	return models.PromotionDecision{Approved: len(failures) == 0, Reasons: failures}
}

// consistencyVariance draws five subsamples of ceil(0.7*total) rows via
// seeded shuffle-prefix and returns the population variance of their
// non-abstained accuracies.
func (e *Evaluator) consistencyVariance(predictions []HoldoutPrediction) float64 {
	sampleSize := maxInt(1, int(math.Ceil(float64(len(predictions))*0.7)))

	accuracies := make([]float64, 0, 5)
	for i := 0; i < 5; i++ {
		shuffled := make([]HoldoutPrediction, len(predictions))
		copy(shuffled, predictions)
		e.rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		matches, signals := 0, 0
		for _, row := range shuffled[:sampleSize] {
			if row.Abstained {
				continue
			}
			signals++
			if row.PredictedProfitable == row.ActualProfitable {
				matches++
			}
		}
		if signals == 0 {
			accuracies = append(accuracies, 0.0)
			continue
		}
		accuracies = append(accuracies, float64(matches)/float64(signals))
	}

	mean := 0.0
	for _, value := range accuracies {
		mean += value
	}
	mean /= float64(len(accuracies))

	variance := 0.0
	for _, value := range accuracies {
		variance += (value - mean) * (value - mean)
	}
	return variance / float64(len(accuracies))
}

var versionDigits = regexp.MustCompile(`(\d+)`)

// extractNumericVersion pulls the first contiguous decimal integer out
// of a dataset version string; missing digits resolve to -1.
func extractNumericVersion(value string) int {
	match := versionDigits.FindString(value)
	if match == "" {
		return -1
	}
	parsed, err := strconv.Atoi(match)
	if err != nil {
		return -1
	}
	return parsed
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
