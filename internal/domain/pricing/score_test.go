package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/coursedesk/sales-assistant/internal/domain/profile"
)

func TestScoreOption(t *testing.T) {
	base := decimal.NewFromInt(1000)

	tests := []struct {
		name     string
		prof     *profile.Profile
		discount decimal.Decimal
		want     float64
	}{
		{
			name:     "nil profile is the flat base score",
			prof:     nil,
			discount: decimal.NewFromInt(200),
			want:     0.5,
		},
		{
			name:     "high sensitivity plus trust zone",
			prof:     &profile.Profile{PriceSensitivity: profile.SensitivityHigh},
			discount: decimal.NewFromInt(200), // 20%
			want:     1.0,
		},
		{
			name:     "low sensitivity outside trust zone",
			prof:     &profile.Profile{PriceSensitivity: profile.SensitivityLow},
			discount: decimal.NewFromInt(50), // 5%
			want:     0.3,
		},
		{
			name:     "over-discounting penalty",
			prof:     &profile.Profile{},
			discount: decimal.NewFromInt(350), // 35%
			want:     0.4,
		},
		{
			name:     "trust zone lower bound",
			prof:     &profile.Profile{},
			discount: decimal.NewFromInt(100), // exactly 10%
			want:     0.7,
		},
		{
			name:     "trust zone upper bound",
			prof:     &profile.Profile{},
			discount: decimal.NewFromInt(250), // exactly 25%
			want:     0.7,
		},
		{
			name:     "between 25 and 30 percent is neutral",
			prof:     &profile.Profile{},
			discount: decimal.NewFromInt(280), // 28%
			want:     0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreOption(tt.prof, tt.discount, base)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreNoDiscount(t *testing.T) {
	tests := []struct {
		name string
		prof *profile.Profile
		want float64
	}{
		{
			name: "nil profile is the flat base score",
			prof: nil,
			want: 0.3,
		},
		{
			name: "low sensitivity favors keeping the price",
			prof: &profile.Profile{PriceSensitivity: profile.SensitivityLow},
			want: 0.7,
		},
		{
			name: "high sensitivity penalizes it",
			prof: &profile.Profile{PriceSensitivity: profile.SensitivityHigh},
			want: 0.1,
		},
		{
			name: "low sensitivity with high value perception",
			prof: &profile.Profile{
				PriceSensitivity: profile.SensitivityLow,
				ValuePerception:  profile.PerceptionHigh,
			},
			want: 0.9,
		},
		{
			name: "high value perception alone",
			prof: &profile.Profile{ValuePerception: profile.PerceptionHigh},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreNoDiscount(tt.prof)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.42, clamp01(0.42))
}
