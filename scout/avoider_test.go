package scout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvoider_InDanger(t *testing.T) {
	a := NewAvoider(SafetyConfig{StopDistance: 0.4, ConeHalfAngleDeg: 30})
	deg := math.Pi / 180

	tests := []struct {
		name string
		scan Scan
		want bool
	}{
		{"clear ahead", Scan{Angles: []float64{-10 * deg, 0, 10 * deg}, Distances: []float64{2, 3, 2}}, false},
		{"close ahead", Scan{Angles: []float64{-10 * deg, 0, 10 * deg}, Distances: []float64{2, 0.3, 2}}, true},
		{"close but outside cone", Scan{Angles: []float64{-90 * deg, 0, 90 * deg}, Distances: []float64{0.1, 3, 0.1}}, false},
		{"edge of cone", Scan{Angles: []float64{29 * deg}, Distances: []float64{0.2}}, true},
		{"negative echo ignored", Scan{Angles: []float64{0}, Distances: []float64{-1}}, false},
		{"empty scan", Scan{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.InDanger(tt.scan))
		})
	}
}

func TestAvoider_Nearest(t *testing.T) {
	a := NewAvoider(SafetyConfig{StopDistance: 0.4, ConeHalfAngleDeg: 45})
	scan := NewSweepScan(-math.Pi/2, math.Pi/4, []float64{0.1, 1.5, 0.8, 1.2, 0.05})

	d, angle, ok := a.Nearest(scan)
	assert.True(t, ok)
	assert.InDelta(t, 0.8, d, 1e-12)
	assert.InDelta(t, 0, angle, 1e-12)

	_, _, ok = NewAvoider(SafetyConfig{ConeHalfAngleDeg: 10}).Nearest(NewSweepScan(1, 0.1, []float64{1, 1}))
	assert.False(t, ok)
}
