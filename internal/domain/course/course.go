package course

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested course does not exist.
var ErrNotFound = errors.New("course not found")

// Status enumerates the lifecycle states of a course.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Course is a purchasable catalog entry. The pricing engine only reads
// courses; mutation is an admin concern.
type Course struct {
	ID            string
	Name          string
	Category      string
	OriginalPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	Status        Status
}

// Repository defines read operations for the course catalog.
type Repository interface {
	List(ctx context.Context) ([]Course, error)
	GetByID(ctx context.Context, id string) (*Course, error)
	GetByIDs(ctx context.Context, ids []string) ([]Course, error)
}
