package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeVetoReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"Daily drawdown breach: trading halted.", VetoReasonDrawdown},
		{"Position size exceeds cap.", VetoReasonPositionSize},
		{"Sector exposure above limit.", VetoReasonSector},
		{"Within major economic event no-trade window.", VetoReasonEventWindow},
		{"Insufficient instrument history.", VetoReasonHistory},
		{"something unexpected", VetoReasonOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeVetoReason(tt.reason), tt.reason)
	}
}

func TestRecordDatasetSplits(t *testing.T) {
	RecordDatasetSplits("technical_agent", map[string]int{
		"train":      70,
		"validation": 15,
		"test":       15,
	})

	assert.Equal(t, 70.0, testutil.ToFloat64(DatasetPairs.WithLabelValues("technical_agent", "train")))
	assert.Equal(t, 15.0, testutil.ToFloat64(DatasetPairs.WithLabelValues("technical_agent", "validation")))
	assert.Equal(t, 15.0, testutil.ToFloat64(DatasetPairs.WithLabelValues("technical_agent", "test")))

	// A later, smaller rebuild overwrites the gauge rather than accumulating.
	RecordDatasetSplits("technical_agent", map[string]int{"train": 40})
	assert.Equal(t, 40.0, testutil.ToFloat64(DatasetPairs.WithLabelValues("technical_agent", "train")))
}
