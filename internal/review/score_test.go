package review

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	longBody := strings.Repeat("detalle de la compra ", 10)

	tests := []struct {
		name    string
		signals ParseSignals
		want    float64
	}{
		{
			name: "complete parse keeps the base score",
			signals: ParseSignals{
				Amount:       decimal.NewFromFloat(15320.50),
				MerchantName: "FARMACIA LA BUENA",
				ReferenceID:  "987654321",
				RawBody:      longBody,
				HasDate:      true,
				CardDetected: true,
			},
			want: 0.95,
		},
		{
			name: "missing amount",
			signals: ParseSignals{
				Amount:       decimal.Zero,
				MerchantName: "FARMACIA LA BUENA",
				ReferenceID:  "987654321",
				RawBody:      longBody,
				HasDate:      true,
				CardDetected: true,
			},
			want: 0.60,
		},
		{
			name: "short merchant name",
			signals: ParseSignals{
				Amount:       decimal.NewFromInt(100),
				MerchantName: "AB",
				ReferenceID:  "987654321",
				RawBody:      longBody,
				HasDate:      true,
				CardDetected: true,
			},
			want: 0.75,
		},
		{
			name: "implausibly large amount",
			signals: ParseSignals{
				Amount:       decimal.NewFromInt(6_000_000),
				MerchantName: "CONCESIONARIA",
				ReferenceID:  "987654321",
				RawBody:      longBody,
				HasDate:      true,
				CardDetected: true,
			},
			want: 0.90,
		},
		{
			name:    "everything missing clamps to the floor",
			signals: ParseSignals{},
			want:    0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.signals), 0.0001)
		})
	}
}

func TestShouldFlag(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }

	tests := []struct {
		parseConf    *float64
		categoryConf *float64
		name         string
		threshold    float64
		want         bool
	}{
		{name: "low parse confidence", parseConf: ptr(0.5), threshold: 0.6, want: true},
		{name: "missing parse confidence", parseConf: nil, threshold: 0.6, want: true},
		{name: "confident parse and category", parseConf: ptr(0.9), categoryConf: ptr(0.95), threshold: 0.6, want: false},
		{name: "confident parse but weak category", parseConf: ptr(0.9), categoryConf: ptr(0.4), threshold: 0.6, want: true},
		{name: "confident parse, no category yet", parseConf: ptr(0.9), threshold: 0.6, want: false},
		{name: "zero threshold falls back to default", parseConf: ptr(0.5), threshold: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFlag(tt.parseConf, tt.categoryConf, tt.threshold))
		})
	}
}
