// Command seed-db applies migrations and seeds the database with courses,
// starter coupons, and an admin API key for local development.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/auth"
	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/repository"
)

type courseJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
}

func main() {
	var (
		databaseURL  string
		coursesFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&coursesFile, "courses-file", "db/seed/courses.json", "path to courses JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SALES_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SALES_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SALES_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SALES_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SALES_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, coursesFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, coursesFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCourses(ctx, repository.NewCourseRepository(pool), coursesFile); err != nil {
		return errors.Wrap(err, "seed courses")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCourses(ctx context.Context, repo *repository.CourseRepository, coursesFile string) error {
	slog.Info("reading courses file", slog.String("path", coursesFile))

	data, err := os.ReadFile(coursesFile)
	if err != nil {
		return errors.Wrap(err, "read courses file")
	}

	var courses []courseJSON
	if err := json.Unmarshal(data, &courses); err != nil {
		return errors.Wrap(err, "parse courses JSON")
	}

	slog.Info("upserting courses", slog.Int("count", len(courses)))

	for _, c := range courses {
		if err := repo.Upsert(ctx, course.Course{
			ID:            c.ID,
			Name:          c.Name,
			Category:      c.Category,
			OriginalPrice: c.OriginalPrice,
			CurrentPrice:  c.CurrentPrice,
			Status:        course.StatusActive,
		}); err != nil {
			return errors.Wrapf(err, "upsert course %s", c.ID)
		}

		slog.Info("upserted course", slog.String("id", c.ID), slog.String("name", c.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding starter coupons")

	now := time.Now().UTC().Truncate(time.Hour)
	year := now.AddDate(1, 0, 0)
	maxWelcome := decimal.NewFromInt(200)

	coupons := []coupon.Coupon{
		{
			Code:              "WELCOME20",
			Name:              "Welcome discount",
			Type:              coupon.TypePercentage,
			DiscountValue:     decimal.NewFromFloat(0.20),
			MinOrderAmount:    decimal.NewFromInt(100),
			MaxDiscount:       &maxWelcome,
			ValidFrom:         now,
			ValidTo:           year,
			UsageLimitPerUser: 1,
			Description:       "20% off the first order, capped at 200",
			Status:            coupon.StatusActive,
		},
		{
			Code:           "COURSE50",
			Name:           "Flat 50 off",
			Type:           coupon.TypeFixedAmount,
			DiscountValue:  decimal.NewFromInt(50),
			MinOrderAmount: decimal.NewFromInt(300),
			ValidFrom:      now,
			ValidTo:        year,
			UsageLimit:     1000,
			Description:    "50 off orders of 300 or more",
			Status:         coupon.StatusActive,
		},
	}

	for i := range coupons {
		if err := repo.Upsert(ctx, &coupons[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", coupons[i].Code)
		}

		slog.Info("upserted coupon",
			slog.String("code", coupons[i].Code),
			slog.String("description", coupons[i].Description),
		)
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: keyHash,
		Name:    "Default admin key",
		Scopes:  []string{"admin"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
