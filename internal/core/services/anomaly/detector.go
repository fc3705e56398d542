// Package anomaly implements the bounded-window Z-score classifier used
// on the per-event processing path. It is grounded on the original
// implementation's AnomalyDetector (backend/src/processing/anomaly_detector.py),
// translated from numpy's mean/std over a deque into a hand-rolled
// running window since the window is small (<=a few hundred values) and
// a dependency for this alone isn't warranted.
package anomaly

import "math"

const (
	// DefaultWindowSize is the number of most-recent values the detector
	// retains.
	DefaultWindowSize = 100

	// DefaultThreshold is the Z-score above which a value is flagged.
	DefaultThreshold = 3.0

	// minSamples is the minimum window population before classification
	// is attempted; below this the sample is too small to trust a
	// standard deviation estimate.
	minSamples = 30
)

// Detector is a single-producer, bounded-window Z-score classifier. It
// holds no internal locking: each EventWorkerPool worker owns its own
// instance (per-worker statistical context), exactly as the spec
// requires — cross-worker sharing would add contention without
// improving detection quality at target throughput.
type Detector struct {
	window    []float64
	head      int
	size      int
	windowCap int
	threshold float64
}

// New constructs a Detector with the given window size and threshold.
func New(windowSize int, threshold float64) *Detector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		window:    make([]float64, windowSize),
		windowCap: windowSize,
		threshold: threshold,
	}
}

// Detect appends value to the window (evicting the oldest entry once
// full) and classifies it against the resulting population.
//
//  1. Fewer than 30 accumulated values: insufficient data, (false, 0.0).
//  2. Population standard deviation of zero: avoid a division by zero,
//     (false, 0.0).
//  3. Otherwise: z = |value - mean| / stddev, is_anomaly = z > threshold.
func (d *Detector) Detect(value float64) (isAnomaly bool, zScore float64) {
	d.window[d.head] = value
	d.head = (d.head + 1) % d.windowCap
	if d.size < d.windowCap {
		d.size++
	}

	if d.size < minSamples {
		return false, 0.0
	}

	mean := d.mean()
	std := d.populationStdDev(mean)
	if std == 0 {
		return false, 0.0
	}

	z := math.Abs(value-mean) / std
	return z > d.threshold, z
}

func (d *Detector) mean() float64 {
	var sum float64
	for i := 0; i < d.size; i++ {
		sum += d.window[i]
	}
	return sum / float64(d.size)
}

func (d *Detector) populationStdDev(mean float64) float64 {
	var sumSq float64
	for i := 0; i < d.size; i++ {
		diff := d.window[i] - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(d.size))
}

// Severity classifies an anomaly alert's urgency from its Z-score, per
// the broadcast hub's anomaly alert contract: "high" above 4 standard
// deviations, "medium" otherwise.
func Severity(zScore float64) string {
	if math.Abs(zScore) > 4 {
		return "high"
	}
	return "medium"
}
