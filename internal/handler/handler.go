// Package handler exposes the pricing engine over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/domain/discount"
	"github.com/coursedesk/sales-assistant/internal/domain/order"
	"github.com/coursedesk/sales-assistant/internal/domain/pricing"
	"github.com/coursedesk/sales-assistant/internal/domain/profile"
)

// CouponStore covers the coupon operations the HTTP layer needs beyond
// validation: admin creation, listing of currently redeemable coupons, and
// the per-user views.
type CouponStore interface {
	Create(ctx context.Context, c *coupon.Coupon) error
	ListValid(ctx context.Context, now time.Time) ([]coupon.Coupon, error)
	AvailableForUser(ctx context.Context, userID string, now time.Time) ([]coupon.Coupon, error)
	UserUsageHistory(ctx context.Context, userID string) ([]coupon.Usage, error)
}

// Handler wires domain services to HTTP routes.
type Handler struct {
	courses    course.Repository
	validator  coupon.Validator
	coupons    CouponStore
	calculator *pricing.Calculator
	orders     *order.Service
	ledger     discount.Ledger
	security   *Security
}

// New creates a Handler.
func New(
	courses course.Repository,
	validator coupon.Validator,
	coupons CouponStore,
	calculator *pricing.Calculator,
	orders *order.Service,
	ledger discount.Ledger,
	security *Security,
) *Handler {
	return &Handler{
		courses:    courses,
		validator:  validator,
		coupons:    coupons,
		calculator: calculator,
		orders:     orders,
		ledger:     ledger,
		security:   security,
	}
}

// Routes mounts all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/courses", h.listCourses)
		r.Get("/courses/{id}", h.getCourse)

		r.Post("/coupons/validate", h.validateCoupon)
		r.Get("/coupons/available", h.availableCoupons)
		r.Get("/coupons/usage", h.couponUsageHistory)

		r.Post("/pricing/quote", h.priceQuote)
		r.Post("/pricing/decision", h.applyDecision)

		r.Get("/discounts/best", h.bestDiscount)

		r.Post("/orders", h.checkout)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/pay", h.payOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.security.RequireAPIKey("admin"))
			r.Get("/coupons", h.listCoupons)
			r.Post("/coupons", h.createCoupon)
		})
	})
}

// --- courses ---

type courseDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	OriginalPrice float64 `json:"original_price"`
	CurrentPrice  float64 `json:"current_price"`
	Status        string  `json:"status"`
}

func toCourseDTO(c course.Course) courseDTO {
	return courseDTO{
		ID:            c.ID,
		Name:          c.Name,
		Category:      c.Category,
		OriginalPrice: c.OriginalPrice.InexactFloat64(),
		CurrentPrice:  c.CurrentPrice.InexactFloat64(),
		Status:        string(c.Status),
	}
}

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]courseDTO, len(courses))
	for i, c := range courses {
		out[i] = toCourseDTO(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (h *Handler) getCourse(w http.ResponseWriter, r *http.Request) {
	c, err := h.courses.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(*c))
}

// --- coupon validation ---

type validateCouponRequest struct {
	CouponCode  string  `json:"coupon_code"`
	UserID      string  `json:"user_id"`
	OrderAmount float64 `json:"order_amount"`
}

type couponDTO struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	DiscountValue  float64  `json:"discount_value"`
	MinOrderAmount float64  `json:"min_order_amount"`
	MaxDiscount    *float64 `json:"max_discount,omitempty"`
	ValidFrom      string   `json:"valid_from"`
	ValidTo        string   `json:"valid_to"`
	Description    string   `json:"description,omitempty"`
}

func toCouponDTO(c *coupon.Coupon) *couponDTO {
	if c == nil {
		return nil
	}
	dto := &couponDTO{
		Code:           c.Code,
		Name:           c.Name,
		Type:           string(c.Type),
		DiscountValue:  c.DiscountValue.InexactFloat64(),
		MinOrderAmount: c.MinOrderAmount.InexactFloat64(),
		ValidFrom:      c.ValidFrom.UTC().Format(time.RFC3339),
		ValidTo:        c.ValidTo.UTC().Format(time.RFC3339),
		Description:    c.Description,
	}
	if c.MaxDiscount != nil {
		v := c.MaxDiscount.InexactFloat64()
		dto.MaxDiscount = &v
	}
	return dto
}

type validateCouponResponse struct {
	IsValid           bool       `json:"is_valid"`
	Errors            []string   `json:"errors,omitempty"`
	DiscountAmount    float64    `json:"discount_amount"`
	MinOrderRequired  *float64   `json:"min_order_required,omitempty"`
	ApplicableCourses []string   `json:"applicable_courses,omitempty"`
	Coupon            *couponDTO `json:"coupon,omitempty"`
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CouponCode == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "coupon_code and user_id are required")
		return
	}

	res, err := h.validator.Validate(r.Context(), req.CouponCode, req.UserID, decimal.NewFromFloat(req.OrderAmount))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := validateCouponResponse{
		IsValid:           res.IsValid,
		Errors:            res.Errors,
		DiscountAmount:    res.DiscountAmount.InexactFloat64(),
		ApplicableCourses: res.ApplicableCourses,
		Coupon:            toCouponDTO(res.Coupon),
	}
	if res.MinOrderRequired != nil {
		v := res.MinOrderRequired.InexactFloat64()
		out.MinOrderRequired = &v
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) availableCoupons(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	coupons, err := h.coupons.AvailableForUser(r.Context(), userID, time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]*couponDTO, len(coupons))
	for i := range coupons {
		out[i] = toCouponDTO(&coupons[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": out})
}

type usageDTO struct {
	CouponCode     string  `json:"coupon_code"`
	OrderID        string  `json:"order_id"`
	DiscountAmount float64 `json:"discount_amount"`
	UsedAt         string  `json:"used_at"`
}

func (h *Handler) couponUsageHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	usages, err := h.coupons.UserUsageHistory(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]usageDTO, len(usages))
	for i, u := range usages {
		out[i] = usageDTO{
			CouponCode:     u.CouponCode,
			OrderID:        u.OrderID,
			DiscountAmount: u.DiscountAmount.InexactFloat64(),
			UsedAt:         u.UsedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usages": out})
}

// --- pricing ---

type quoteRequest struct {
	UserID     string           `json:"user_id"`
	CourseIDs  []string         `json:"course_ids"`
	CouponCode string           `json:"coupon_code,omitempty"`
	Profile    *profile.Profile `json:"user_profile,omitempty"`
}

type lineItemDTO struct {
	CourseID        string  `json:"course_id"`
	CourseName      string  `json:"course_name"`
	OriginalPrice   float64 `json:"original_price"`
	DiscountedPrice float64 `json:"discounted_price"`
	Quantity        int     `json:"quantity"`
}

type calculationDTO struct {
	OriginalTotal  float64       `json:"original_total"`
	DiscountTotal  float64       `json:"discount_total"`
	CouponDiscount float64       `json:"coupon_discount"`
	AgentDiscount  float64       `json:"agent_discount"`
	FinalTotal     float64       `json:"final_total"`
	Items          []lineItemDTO `json:"items"`
}

func toCalculationDTO(c pricing.Calculation) calculationDTO {
	items := make([]lineItemDTO, len(c.Items))
	for i, it := range c.Items {
		items[i] = lineItemDTO{
			CourseID:        it.CourseID,
			CourseName:      it.CourseName,
			OriginalPrice:   it.OriginalPrice.InexactFloat64(),
			DiscountedPrice: it.DiscountedPrice.InexactFloat64(),
			Quantity:        it.Quantity,
		}
	}
	return calculationDTO{
		OriginalTotal:  c.OriginalTotal.InexactFloat64(),
		DiscountTotal:  c.DiscountTotal.InexactFloat64(),
		CouponDiscount: c.CouponDiscount.InexactFloat64(),
		AgentDiscount:  c.AgentDiscount.InexactFloat64(),
		FinalTotal:     c.FinalTotal.InexactFloat64(),
		Items:          items,
	}
}

type optionDTO struct {
	OptionType        string  `json:"option_type"`
	CalcType          string  `json:"calc_type,omitempty"`
	Value             float64 `json:"value"`
	Description       string  `json:"description"`
	EstimatedDiscount float64 `json:"estimated_discount"`
	FinalAmount       float64 `json:"final_amount"`
	Score             float64 `json:"score"`
	Reasoning         string  `json:"reasoning"`
}

func toOptionDTO(o pricing.Option) optionDTO {
	return optionDTO{
		OptionType:        string(o.Type),
		CalcType:          string(o.CalcType),
		Value:             o.Value.InexactFloat64(),
		Description:       o.Description,
		EstimatedDiscount: o.EstimatedDiscount.InexactFloat64(),
		FinalAmount:       o.FinalAmount.InexactFloat64(),
		Score:             o.Score,
		Reasoning:         o.Reasoning,
	}
}

type guidanceDTO struct {
	Prompt         string   `json:"prompt"`
	Considerations []string `json:"considerations"`
}

type quoteResponse struct {
	Base                calculationDTO         `json:"base"`
	Options             []optionDTO            `json:"options"`
	Recommended         *optionDTO             `json:"recommended,omitempty"`
	Guidance            guidanceDTO            `json:"guidance"`
	PricingFactors      profile.PricingFactors `json:"pricing_factors"`
	UnresolvedCourseIDs []string               `json:"unresolved_course_ids,omitempty"`
}

func (h *Handler) priceQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.CourseIDs) == 0 {
		writeError(w, http.StatusBadRequest, "course_ids is required")
		return
	}

	analysis, err := h.calculator.CalculateWithOptions(r.Context(), req.CourseIDs, req.UserID, req.Profile, req.CouponCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := quoteResponse{
		Base:                toCalculationDTO(analysis.Base),
		Options:             make([]optionDTO, len(analysis.Options)),
		Guidance:            guidanceDTO(analysis.Guidance),
		PricingFactors:      analysis.Factors,
		UnresolvedCourseIDs: analysis.UnresolvedCourseIDs,
	}
	for i, o := range analysis.Options {
		out.Options[i] = toOptionDTO(o)
	}
	if analysis.Recommended != nil {
		rec := toOptionDTO(*analysis.Recommended)
		out.Recommended = &rec
	}
	writeJSON(w, http.StatusOK, out)
}

type decisionRequest struct {
	UserID     string   `json:"user_id"`
	CourseIDs  []string `json:"course_ids"`
	OptionType string   `json:"option_type"`
	CalcType   string   `json:"calc_type"`
	Value      float64  `json:"value"`
	Reasoning  string   `json:"reasoning,omitempty"`
	CouponCode string   `json:"coupon_code,omitempty"`
}

func (h *Handler) applyDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || len(req.CourseIDs) == 0 {
		writeError(w, http.StatusBadRequest, "user_id and course_ids are required")
		return
	}

	calc, err := h.calculator.ApplyAgentDecision(r.Context(), pricing.DecisionParams{
		UserID:    req.UserID,
		CourseIDs: req.CourseIDs,
		Selected: pricing.Selection{
			OptionType: discount.OptionType(req.OptionType),
			CalcType:   discount.CalcType(req.CalcType),
			Value:      decimal.NewFromFloat(req.Value),
		},
		Reasoning:  req.Reasoning,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(*calc))
}

// --- applied discounts ---

type appliedDiscountDTO struct {
	ID             int64   `json:"id"`
	OptionType     string  `json:"option_type"`
	CalcType       string  `json:"calc_type"`
	Value          float64 `json:"value"`
	DiscountAmount float64 `json:"discount_amount"`
	Reasoning      string  `json:"reasoning,omitempty"`
	ValidUntil     string  `json:"valid_until"`
}

func (h *Handler) bestDiscount(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	courseID := r.URL.Query().Get("course_id")

	orderAmount := decimal.Zero
	if raw := r.URL.Query().Get("order_amount"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "order_amount must be a number")
			return
		}
		orderAmount = decimal.NewFromFloat(f)
	}

	active, err := h.ledger.ActiveForUser(r.Context(), userID, courseID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	best := discount.BestFor(active, orderAmount)
	if best == nil {
		writeJSON(w, http.StatusOK, map[string]any{"found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"found": true,
		"discount": appliedDiscountDTO{
			ID:             best.ID,
			OptionType:     string(best.OptionType),
			CalcType:       string(best.CalcType),
			Value:          best.Value.InexactFloat64(),
			DiscountAmount: best.Amount(orderAmount).InexactFloat64(),
			Reasoning:      best.Reasoning,
			ValidUntil:     best.ValidUntil.UTC().Format(time.RFC3339),
		},
	})
}

// --- orders ---

type checkoutRequest struct {
	UserID        string   `json:"user_id"`
	CourseIDs     []string `json:"course_ids"`
	CouponCode    string   `json:"coupon_code,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type orderDTO struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Items             []lineItemDTO `json:"items"`
	OriginalAmount    float64       `json:"original_amount"`
	DiscountAmount    float64       `json:"discount_amount"`
	CouponDiscount    float64       `json:"coupon_discount"`
	FinalAmount       float64       `json:"final_amount"`
	AppliedDiscountID *int64        `json:"applied_discount_id,omitempty"`
	CouponCode        string        `json:"coupon_code,omitempty"`
	Status            string        `json:"status"`
	PaymentStatus     string        `json:"payment_status"`
	PaymentMethod     string        `json:"payment_method,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	CreatedAt         string        `json:"created_at"`
	PaidAt            *string       `json:"paid_at,omitempty"`
}

func toOrderDTO(o *order.Order) orderDTO {
	items := make([]lineItemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemDTO{
			CourseID:        it.CourseID,
			CourseName:      it.CourseName,
			OriginalPrice:   it.OriginalPrice.InexactFloat64(),
			DiscountedPrice: it.DiscountedPrice.InexactFloat64(),
			Quantity:        it.Quantity,
		}
	}
	dto := orderDTO{
		ID:                o.ID,
		UserID:            o.UserID,
		Items:             items,
		OriginalAmount:    o.OriginalAmount.InexactFloat64(),
		DiscountAmount:    o.DiscountAmount.InexactFloat64(),
		CouponDiscount:    o.CouponDiscount.InexactFloat64(),
		FinalAmount:       o.FinalAmount.InexactFloat64(),
		AppliedDiscountID: o.AppliedDiscountID,
		CouponCode:        o.CouponCode,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentMethod:     o.PaymentMethod,
		Notes:             o.Notes,
		CreatedAt:         o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		v := o.PaidAt.UTC().Format(time.RFC3339)
		dto.PaidAt = &v
	}
	return dto
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:        req.UserID,
		CourseIDs:     req.CourseIDs,
		CouponCode:    req.CouponCode,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.orders.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]orderDTO, len(orders))
	for i := range orders {
		out[i] = toOrderDTO(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orders.MarkPaid(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orders.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// --- coupon admin ---

type createCouponRequest struct {
	Code              string   `json:"code"`
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	DiscountValue     float64  `json:"discount_value"`
	MinOrderAmount    float64  `json:"min_order_amount"`
	MaxDiscount       *float64 `json:"max_discount,omitempty"`
	ValidFrom         string   `json:"valid_from"`
	ValidTo           string   `json:"valid_to"`
	UsageLimit        int      `json:"usage_limit"`
	UsageLimitPerUser int      `json:"usage_limit_per_user"`
	ApplicableCourses []string `json:"applicable_courses,omitempty"`
	Description       string   `json:"description,omitempty"`
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	t := coupon.Type(req.Type)
	if t != coupon.TypePercentage && t != coupon.TypeFixedAmount {
		writeError(w, http.StatusBadRequest, "type must be percentage or fixed_amount")
		return
	}
	// Percentage values are fractions; 0.20 means 20% off.
	if t == coupon.TypePercentage && (req.DiscountValue <= 0 || req.DiscountValue > 1) {
		writeError(w, http.StatusBadRequest, "percentage discount_value must be in (0, 1]")
		return
	}
	if t == coupon.TypeFixedAmount && req.DiscountValue <= 0 {
		writeError(w, http.StatusBadRequest, "fixed_amount discount_value must be positive")
		return
	}
	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid_from must be RFC 3339")
		return
	}
	validTo, err := time.Parse(time.RFC3339, req.ValidTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid_to must be RFC 3339")
		return
	}
	if !validFrom.Before(validTo) {
		writeError(w, http.StatusBadRequest, "valid_from must precede valid_to")
		return
	}

	c := &coupon.Coupon{
		Code:              req.Code,
		Name:              req.Name,
		Type:              t,
		DiscountValue:     decimal.NewFromFloat(req.DiscountValue),
		MinOrderAmount:    decimal.NewFromFloat(req.MinOrderAmount),
		ValidFrom:         validFrom,
		ValidTo:           validTo,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		ApplicableCourses: req.ApplicableCourses,
		Description:       req.Description,
		Status:            coupon.StatusActive,
	}
	if req.MaxDiscount != nil {
		v := decimal.NewFromFloat(*req.MaxDiscount)
		c.MaxDiscount = &v
	}

	if err := h.coupons.Create(r.Context(), c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": c.ID, "code": c.Code})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListValid(r.Context(), time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]*couponDTO, len(coupons))
	for i := range coupons {
		out[i] = toCouponDTO(&coupons[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": out})
}
