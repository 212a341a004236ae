package util

import (
	"fmt"
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	if s.Mean != 5 {
		t.Errorf("Expected mean 5, got %f", s.Mean)
	}
	if s.StdDeviation != 2 {
		t.Errorf("Expected std deviation 2, got %f", s.StdDeviation)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Expected min 2 and max 9, got %f and %f", s.Min, s.Max)
	}
	if math.Abs(s.MinMaxRatio-2.0/9.0) > 1e-9 {
		t.Errorf("Expected min/max ratio %f, got %f", 2.0/9.0, s.MinMaxRatio)
	}

	if empty := NewStats(nil); empty != (Stats{}) {
		t.Errorf("Expected zero stats for empty input, got %+v", empty)
	}
}

func TestDistributionQuality(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("Expected quality 1 for an even distribution, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{0, 0, 0, 40})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Expected skewed distribution to rate lower (%f >= %f)", skewed.DistributionQuality, even.DistributionQuality)
	}
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()

	if h.MedianEstimate() != 0 || h.AverageSize() != 0 {
		t.Errorf("Expected zero estimates for an empty histogram")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(10) // first bucket
	}
	for i := 0; i < 10; i++ {
		h.AddSample(2000) // 1024 < size <= 4096
	}

	if h.Count() != 100 {
		t.Errorf("Expected 100 samples, got %d", h.Count())
	}
	if h.AverageSize() != (90*10+10*2000)/100 {
		t.Errorf("Unexpected average %d", h.AverageSize())
	}
	if h.MedianEstimate() != 8 {
		t.Errorf("Expected median estimate 8, got %d", h.MedianEstimate())
	}
	if p := h.PercentileEstimate(99); p != (1024+4096)/2 {
		t.Errorf("Expected p99 estimate %d, got %d", (1024+4096)/2, p)
	}
	if h.PercentileEstimate(101) != 0 {
		t.Errorf("Expected 0 for an invalid percentile")
	}

	h.AddSample(1 << 33)
	if p := h.PercentileEstimate(100); p != histogramBoundaries[len(histogramBoundaries)-1]*2 {
		t.Errorf("Expected overflow bucket estimate, got %d", p)
	}
}

func TestHashString(t *testing.T) {
	a, b := GenerateSeed(), GenerateSeed()
	if HashString("policy", a) != HashString("policy", a) {
		t.Errorf("Expected hash to be deterministic for one seed")
	}
	differs := false
	for i := 0; i < 16; i++ {
		k := fmt.Sprintf("key-%d", i)
		if HashString(k, a) != HashString(k, b) {
			differs = true
		}
	}
	if !differs {
		t.Errorf("Expected a different seed to change the hashes")
	}
}
