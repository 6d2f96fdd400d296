package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon     *Coupon
	findErr    error
	userUsed   int
	usageErr   error
	recordErr  error
	recordedID string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.findErr
}

func (m *mockCouponRepo) UserUsageCount(_ context.Context, _, _ string) (int, error) {
	return m.userUsed, m.usageErr
}

func (m *mockCouponRepo) RecordUsage(_ context.Context, couponID, _, _ string, _ decimal.Decimal) error {
	m.recordedID = couponID
	return m.recordErr
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)
	farFuture := fixedNow.Add(48 * time.Hour)

	baseCoupon := func() *Coupon {
		return &Coupon{
			ID:            "c1",
			Code:          "SAVE20",
			Type:          TypePercentage,
			DiscountValue: decimal.NewFromFloat(0.20),
			ValidFrom:     pastTime,
			ValidTo:       futureTime,
			Status:        StatusActive,
		}
	}

	tests := []struct {
		name        string
		repo        *mockCouponRepo
		orderAmount decimal.Decimal
		wantValid   bool
		wantAmount  decimal.Decimal
		wantReason  string
	}{
		{
			name:        "valid percentage coupon",
			repo:        &mockCouponRepo{coupon: baseCoupon()},
			orderAmount: decimal.NewFromInt(500),
			wantValid:   true,
			wantAmount:  decimal.NewFromInt(100),
		},
		{
			name: "percentage capped by max discount",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				maxDiscount := decimal.NewFromInt(50)
				c.MaxDiscount = &maxDiscount
				return c
			}()},
			orderAmount: decimal.NewFromInt(500),
			wantValid:   true,
			wantAmount:  decimal.NewFromInt(50),
		},
		{
			name: "fixed amount capped at order amount",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.Type = TypeFixedAmount
				c.DiscountValue = decimal.NewFromInt(80)
				return c
			}()},
			orderAmount: decimal.NewFromInt(60),
			wantValid:   true,
			wantAmount:  decimal.NewFromInt(60),
		},
		{
			name:        "unknown code",
			repo:        &mockCouponRepo{findErr: ErrNotFound},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "coupon not found",
		},
		{
			name: "deactivated coupon",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.Status = StatusInactive
				return c
			}()},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "coupon is deactivated",
		},
		{
			name: "not yet active",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.ValidFrom = futureTime
				c.ValidTo = farFuture
				return c
			}()},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "coupon is not yet active",
		},
		{
			name: "expired",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.ValidFrom = pastTime.Add(-48 * time.Hour)
				c.ValidTo = pastTime
				return c
			}()},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "coupon has expired",
		},
		{
			name: "global usage limit reached",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.UsageLimit = 100
				c.UsedCount = 100
				return c
			}()},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "coupon usage limit reached",
		},
		{
			name: "order amount below minimum",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.MinOrderAmount = decimal.NewFromInt(300)
				return c
			}()},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "order amount below the required minimum of 300.00",
		},
		{
			name: "per-user limit reached",
			repo: &mockCouponRepo{
				coupon: func() *Coupon {
					c := baseCoupon()
					c.UsageLimitPerUser = 1
					return c
				}(),
				userUsed: 1,
			},
			orderAmount: decimal.NewFromInt(100),
			wantReason:  "per-user usage limit for this coupon reached",
		},
		{
			name: "per-user limit not reached",
			repo: &mockCouponRepo{
				coupon: func() *Coupon {
					c := baseCoupon()
					c.UsageLimitPerUser = 2
					return c
				}(),
				userUsed: 1,
			},
			orderAmount: decimal.NewFromInt(500),
			wantValid:   true,
			wantAmount:  decimal.NewFromInt(100),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			res, err := v.Validate(context.Background(), "SAVE20", "u1", tt.orderAmount)
			require.NoError(t, err)
			require.NotNil(t, res)

			assert.Equal(t, tt.wantValid, res.IsValid)
			if tt.wantValid {
				assert.Empty(t, res.Errors)
				assert.True(t, tt.wantAmount.Equal(res.DiscountAmount),
					"want discount %s, got %s", tt.wantAmount, res.DiscountAmount)
			} else {
				require.Len(t, res.Errors, 1)
				assert.Equal(t, tt.wantReason, res.Errors[0])
				assert.True(t, res.DiscountAmount.IsZero())
			}
		})
	}
}

func TestRepoValidator_Validate_MinOrderRequired(t *testing.T) {
	c := &Coupon{
		ID:             "c1",
		Code:           "BIG300",
		Type:           TypeFixedAmount,
		DiscountValue:  decimal.NewFromInt(50),
		MinOrderAmount: decimal.NewFromInt(300),
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidTo:        time.Now().Add(time.Hour),
		Status:         StatusActive,
	}
	v := NewRepoValidator(&mockCouponRepo{coupon: c})

	res, err := v.Validate(context.Background(), "BIG300", "u1", decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.False(t, res.IsValid)
	require.NotNil(t, res.MinOrderRequired)
	assert.True(t, res.MinOrderRequired.Equal(decimal.NewFromInt(300)))
}

func TestRepoValidator_Validate_InfraErrorPropagates(t *testing.T) {
	infraErr := errors.New("connection refused")
	v := NewRepoValidator(&mockCouponRepo{findErr: infraErr})

	res, err := v.Validate(context.Background(), "SAVE20", "u1", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, infraErr)
}

func TestCoupon_CalculateDiscount(t *testing.T) {
	maxDiscount := decimal.NewFromInt(30)

	tests := []struct {
		name   string
		coupon Coupon
		amount decimal.Decimal
		want   decimal.Decimal
	}{
		{
			name:   "percentage",
			coupon: Coupon{Type: TypePercentage, DiscountValue: decimal.NewFromFloat(0.15)},
			amount: decimal.NewFromInt(200),
			want:   decimal.NewFromInt(30),
		},
		{
			name:   "percentage capped by max discount",
			coupon: Coupon{Type: TypePercentage, DiscountValue: decimal.NewFromFloat(0.5), MaxDiscount: &maxDiscount},
			amount: decimal.NewFromInt(200),
			want:   decimal.NewFromInt(30),
		},
		{
			name:   "fixed amount",
			coupon: Coupon{Type: TypeFixedAmount, DiscountValue: decimal.NewFromInt(40)},
			amount: decimal.NewFromInt(200),
			want:   decimal.NewFromInt(40),
		},
		{
			name:   "fixed amount capped at order amount",
			coupon: Coupon{Type: TypeFixedAmount, DiscountValue: decimal.NewFromInt(40)},
			amount: decimal.NewFromInt(25),
			want:   decimal.NewFromInt(25),
		},
		{
			name:   "unknown type yields zero",
			coupon: Coupon{Type: "bogus", DiscountValue: decimal.NewFromInt(40)},
			amount: decimal.NewFromInt(200),
			want:   decimal.Zero,
		},
		{
			name:   "rounds to cents",
			coupon: Coupon{Type: TypePercentage, DiscountValue: decimal.NewFromFloat(0.333)},
			amount: decimal.NewFromFloat(99.99),
			want:   decimal.NewFromFloat(33.30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.CalculateDiscount(tt.amount)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
