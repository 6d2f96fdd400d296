package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursedesk/sales-assistant/internal/domain/auth"
	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/domain/discount"
	"github.com/coursedesk/sales-assistant/internal/domain/order"
	"github.com/coursedesk/sales-assistant/internal/domain/pricing"
)

type mockCourseRepo struct {
	courses map[string]course.Course
}

func (m *mockCourseRepo) List(_ context.Context) ([]course.Course, error) {
	out := make([]course.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCourseRepo) GetByID(_ context.Context, id string) (*course.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, course.ErrNotFound
}

func (m *mockCourseRepo) GetByIDs(_ context.Context, ids []string) ([]course.Course, error) {
	var out []course.Course
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockValidator struct {
	result *coupon.Validation
}

func (m *mockValidator) Validate(_ context.Context, _, _ string, _ decimal.Decimal) (*coupon.Validation, error) {
	return m.result, nil
}

type mockCouponStore struct {
	created *coupon.Coupon
	valid   []coupon.Coupon
	usages  []coupon.Usage
}

func (m *mockCouponStore) Create(_ context.Context, c *coupon.Coupon) error {
	m.created = c
	return nil
}

func (m *mockCouponStore) ListValid(_ context.Context, _ time.Time) ([]coupon.Coupon, error) {
	return m.valid, nil
}

func (m *mockCouponStore) AvailableForUser(_ context.Context, _ string, _ time.Time) ([]coupon.Coupon, error) {
	return m.valid, nil
}

func (m *mockCouponStore) UserUsageHistory(_ context.Context, _ string) ([]coupon.Usage, error) {
	return m.usages, nil
}

type mockCouponRepo struct{}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*coupon.Coupon, error) {
	return nil, coupon.ErrNotFound
}

func (m *mockCouponRepo) UserUsageCount(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) RecordUsage(_ context.Context, _, _, _ string, _ decimal.Decimal) error {
	return nil
}

type mockLedger struct {
	active []discount.Applied
}

func (m *mockLedger) Create(_ context.Context, p discount.CreateParams) (*discount.Applied, error) {
	return &discount.Applied{ID: 1, UserID: p.UserID}, nil
}

func (m *mockLedger) ActiveForUser(_ context.Context, _, _ string) ([]discount.Applied, error) {
	return m.active, nil
}

func (m *mockLedger) Use(_ context.Context, _ int64, _ string, _ decimal.Decimal) (bool, error) {
	return true, nil
}

func (m *mockLedger) Release(_ context.Context, _ int64, _ string) error {
	return nil
}

func (m *mockLedger) ExpireStale(_ context.Context) (int64, error) {
	return 0, nil
}

type mockKeyRepo struct {
	info *auth.APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.info != nil && m.info.KeyHash == hash {
		return m.info, nil
	}
	return nil, coupon.ErrNotFound
}

func newTestRouter(t *testing.T, validator coupon.Validator, store CouponStore, ledger discount.Ledger, keys auth.Repository) chi.Router {
	t.Helper()

	courses := &mockCourseRepo{courses: map[string]course.Course{
		"go-101": {
			ID:            "go-101",
			Name:          "Go Backend Engineering",
			OriginalPrice: decimal.NewFromInt(600),
			CurrentPrice:  decimal.NewFromInt(500),
			Status:        course.StatusActive,
		},
	}}

	calculator := pricing.NewCalculator(courses, validator, ledger, discount.DefaultCatalog())
	orderSvc := order.NewService(courses, &mockCouponRepo{}, validator, ledger, &mockOrderRepo{})
	security := NewSecurity(keys, "pepper")

	h := New(courses, validator, store, calculator, orderSvc, ledger, security)
	router := chi.NewRouter()
	h.Routes(router)
	return router
}

type mockOrderRepo struct {
	created *order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	o.CreatedAt = time.Now()
	m.created = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, _ string) (*order.Order, error) {
	if m.created == nil {
		return nil, order.ErrNotFound
	}
	return m.created, nil
}

func (m *mockOrderRepo) ListForUser(_ context.Context, _ string, _, _ int) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) Transition(_ context.Context, _ string, _, _ order.Status, _ order.PaymentStatus, _ *time.Time) (bool, error) {
	return false, nil
}

func doJSON(t *testing.T, router chi.Router, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ValidateCoupon(t *testing.T) {
	validator := &mockValidator{result: &coupon.Validation{
		IsValid:        true,
		DiscountAmount: decimal.NewFromInt(100),
	}}
	router := newTestRouter(t, validator, &mockCouponStore{}, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodPost, "/api/coupons/validate",
		`{"coupon_code":"SAVE20","user_id":"u1","order_amount":500}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var body validateCouponResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.IsValid)
	assert.InDelta(t, 100, body.DiscountAmount, 1e-9)
}

func TestHandler_ValidateCoupon_BadRequest(t *testing.T) {
	router := newTestRouter(t, &mockValidator{}, &mockCouponStore{}, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodPost, "/api/coupons/validate",
		`{"user_id":"u1","order_amount":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/coupons/validate", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetCourse(t *testing.T) {
	router := newTestRouter(t, &mockValidator{}, &mockCouponStore{}, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodGet, "/api/courses/go-101", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body courseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "go-101", body.ID)
	assert.InDelta(t, 500, body.CurrentPrice, 1e-9)

	rec = doJSON(t, router, http.MethodGet, "/api/courses/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_PriceQuote(t *testing.T) {
	router := newTestRouter(t, &mockValidator{}, &mockCouponStore{}, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodPost, "/api/pricing/quote",
		`{"user_id":"u1","course_ids":["go-101","ghost"],"user_profile":{"price_sensitivity":"high","is_new_user":true}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.InDelta(t, 500, body.Base.OriginalTotal, 1e-9)
	assert.Equal(t, []string{"ghost"}, body.UnresolvedCourseIDs)
	require.NotNil(t, body.Recommended)
	assert.Equal(t, "new_user", body.Recommended.OptionType)
	assert.NotEmpty(t, body.Options)
	assert.NotEmpty(t, body.Guidance.Prompt)
}

func TestHandler_ApplyDecision_OutOfRange(t *testing.T) {
	router := newTestRouter(t, &mockValidator{}, &mockCouponStore{}, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodPost, "/api/pricing/decision",
		`{"user_id":"u1","course_ids":["go-101"],"option_type":"new_user","calc_type":"percentage","value":0.45}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_Checkout(t *testing.T) {
	router := newTestRouter(t, &mockValidator{}, &mockCouponStore{}, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodPost, "/api/orders",
		`{"user_id":"u1","course_ids":["go-101"]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body orderDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 500, body.FinalAmount, 1e-9)
	assert.Equal(t, "pending", body.Status)

	rec = doJSON(t, router, http.MethodPost, "/api/orders",
		`{"user_id":"u1","course_ids":["ghost"]}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_BestDiscount(t *testing.T) {
	ledger := &mockLedger{active: []discount.Applied{{
		ID:         4,
		OptionType: discount.OptionNewUser,
		CalcType:   discount.CalcPercentage,
		Value:      decimal.NewFromFloat(0.20),
		ValidUntil: time.Now().Add(time.Hour),
	}}}
	router := newTestRouter(t, &mockValidator{}, &mockCouponStore{}, ledger, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodGet, "/api/discounts/best?user_id=u1&order_amount=500", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Found    bool               `json:"found"`
		Discount appliedDiscountDTO `json:"discount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Found)
	assert.Equal(t, int64(4), body.Discount.ID)
	assert.InDelta(t, 100, body.Discount.DiscountAmount, 1e-9)

	rec = doJSON(t, router, http.MethodGet, "/api/discounts/best", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AvailableCoupons(t *testing.T) {
	store := &mockCouponStore{valid: []coupon.Coupon{{
		Code:          "SAVE20",
		Type:          coupon.TypePercentage,
		DiscountValue: decimal.NewFromFloat(0.20),
	}}}
	router := newTestRouter(t, &mockValidator{}, store, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodGet, "/api/coupons/available?user_id=u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Coupons []couponDTO `json:"coupons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Coupons, 1)
	assert.Equal(t, "SAVE20", body.Coupons[0].Code)
	assert.InDelta(t, 0.20, body.Coupons[0].DiscountValue, 1e-9)

	rec = doJSON(t, router, http.MethodGet, "/api/coupons/available", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CouponUsageHistory(t *testing.T) {
	usedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &mockCouponStore{usages: []coupon.Usage{{
		CouponCode:     "SAVE20",
		OrderID:        "ORD-1",
		DiscountAmount: decimal.NewFromInt(100),
		UsedAt:         usedAt,
	}}}
	router := newTestRouter(t, &mockValidator{}, store, &mockLedger{}, &mockKeyRepo{})

	rec := doJSON(t, router, http.MethodGet, "/api/coupons/usage?user_id=u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Usages []usageDTO `json:"usages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Usages, 1)
	assert.Equal(t, "SAVE20", body.Usages[0].CouponCode)
	assert.Equal(t, "ORD-1", body.Usages[0].OrderID)
	assert.Equal(t, "2025-06-01T12:00:00Z", body.Usages[0].UsedAt)
}

func TestHandler_CreateCoupon_Validation(t *testing.T) {
	security := NewSecurity(nil, "pepper")
	keys := &mockKeyRepo{info: &auth.APIKeyInfo{
		ID:      "k1",
		KeyHash: security.hash("secret-key"),
		Name:    "test",
		Scopes:  []string{"admin"},
	}}
	store := &mockCouponStore{}
	router := newTestRouter(t, &mockValidator{}, store, &mockLedger{}, keys)
	hdr := http.Header{apiKeyHeader: []string{"secret-key"}}

	tests := []struct {
		name string
		body string
	}{
		{
			name: "percentage above one",
			body: `{"code":"BIG","type":"percentage","discount_value":20,` +
				`"valid_from":"2025-01-01T00:00:00Z","valid_to":"2026-01-01T00:00:00Z"}`,
		},
		{
			name: "zero percentage",
			body: `{"code":"ZERO","type":"percentage","discount_value":0,` +
				`"valid_from":"2025-01-01T00:00:00Z","valid_to":"2026-01-01T00:00:00Z"}`,
		},
		{
			name: "negative fixed amount",
			body: `{"code":"NEG","type":"fixed_amount","discount_value":-50,` +
				`"valid_from":"2025-01-01T00:00:00Z","valid_to":"2026-01-01T00:00:00Z"}`,
		},
		{
			name: "window inverted",
			body: `{"code":"LATE","type":"percentage","discount_value":0.10,` +
				`"valid_from":"2026-01-01T00:00:00Z","valid_to":"2025-01-01T00:00:00Z"}`,
		},
		{
			name: "unknown type",
			body: `{"code":"ODD","type":"bogo","discount_value":0.10,` +
				`"valid_from":"2025-01-01T00:00:00Z","valid_to":"2026-01-01T00:00:00Z"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/admin/coupons", tt.body, hdr)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, store.created)
		})
	}
}

func TestHandler_AdminAuth(t *testing.T) {
	security := NewSecurity(nil, "pepper")
	keys := &mockKeyRepo{info: &auth.APIKeyInfo{
		ID:      "k1",
		KeyHash: security.hash("secret-key"),
		Name:    "test",
		Scopes:  []string{"admin"},
	}}
	store := &mockCouponStore{}
	router := newTestRouter(t, &mockValidator{}, store, &mockLedger{}, keys)

	body := `{"code":"NEW10","name":"Ten off","type":"percentage","discount_value":0.10,` +
		`"valid_from":"2025-01-01T00:00:00Z","valid_to":"2026-01-01T00:00:00Z"}`

	t.Run("missing key", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/admin/coupons", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/admin/coupons", body,
			http.Header{apiKeyHeader: []string{"wrong"}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key creates the coupon", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/admin/coupons", body,
			http.Header{apiKeyHeader: []string{"secret-key"}})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, store.created)
		assert.Equal(t, "NEW10", store.created.Code)
		assert.Equal(t, coupon.StatusActive, store.created.Status)
	})

	t.Run("insufficient scope", func(t *testing.T) {
		keys.info.Scopes = []string{"read"}
		rec := doJSON(t, router, http.MethodPost, "/api/admin/coupons", body,
			http.Header{apiKeyHeader: []string{"secret-key"}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		keys.info.Scopes = []string{"admin"}
	})
}
