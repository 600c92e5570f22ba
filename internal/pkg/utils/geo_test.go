package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", -6.2, 106.8, -6.2, 106.8, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 1},
		{"jakarta to bandung", -6.2, 106.8167, -6.9147, 107.6098, 118300, 1500},
		{"antipodes", 0, 0, 0, 180, 20015087, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.want, got, tt.delta)
			assert.InDelta(t, got, DistanceMeters(tt.lat2, tt.lng2, tt.lat1, tt.lng1), 1e-6)
		})
	}
}
