package anomaly

import (
	"fmt"
	"math"
)

// Detector handles anomaly detection with configurable thresholds
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectPowerSpike checks if the active power magnitude is anomalous based on historical data.
// Power is signed (export is negative), so magnitudes are compared.
func (d *Detector) DetectPowerSpike(value float64, historicalValues []float64) (bool, string) {
	// Need enough historical data for spike detection
	if len(historicalValues) < d.minDataPointsForDetection {
		return false, ""
	}

	// Calculate rolling average of magnitudes
	sum := 0.0
	for _, v := range historicalValues {
		sum += math.Abs(v)
	}
	average := sum / float64(len(historicalValues))

	// Detect sudden spike (>threshold x rolling average)
	magnitude := math.Abs(value)
	if average > 0 && magnitude > d.spikeThreshold*average {
		return true, fmt.Sprintf("sudden power spike: |%.2f| W exceeds %.1fx rolling average %.2f W",
			value, d.spikeThreshold, average)
	}

	return false, ""
}

// DetectEnergyRegression checks that the cumulative energy register did not go backwards
func (d *Detector) DetectEnergyRegression(current, previous float64) (bool, string) {
	if current < previous {
		return true, fmt.Sprintf("energy register decreased: %.2f Wh after %.2f Wh", current, previous)
	}
	return false, ""
}
