package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/wheelhouse/internal/query"
)

// ErrNotFound is returned when a requested listing does not exist.
var ErrNotFound = errors.New("product not found")

// FuelType enumerates the supported engine types.
type FuelType string

const (
	FuelGasoline FuelType = "Gasoline"
	FuelHybrid   FuelType = "Hybrid"
	FuelElectric FuelType = "Electric"
)

// Transmission enumerates gearbox types.
type Transmission string

const (
	TransmissionAutomatic Transmission = "Automatic"
	TransmissionManual    Transmission = "Manual"
)

// Category enumerates vehicle body styles.
type Category string

const (
	CategorySedan       Category = "Sedan"
	CategorySUV         Category = "SUV"
	CategoryTruck       Category = "Truck"
	CategoryCoupe       Category = "Coupe"
	CategoryConvertible Category = "Convertible"
)

// Product is a vehicle listing in the catalog.
//
// InStock is derived state: it must equal quantity > 0 after every quantity
// mutation. The reservation update in the storage layer maintains this
// invariant atomically.
type Product struct {
	ID            string
	Name          string
	Brand         string
	Model         string
	Year          int
	Price         decimal.Decimal
	ExteriorColor string
	InteriorColor string
	FuelType      FuelType
	Transmission  Transmission
	Mileage       int
	Category      Category
	Images        []string
	Description   string
	Features      []string
	Quantity      int
	InStock       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SearchableFields are the text fields matched by the listing search stage.
var SearchableFields = []string{
	"name", "brand", "model",
	"exteriorColor", "interiorColor",
	"fuelType", "transmission", "category",
}

// SpecificationFields are the attribute names treated as vehicle
// specifications by the specification filter stage.
var SpecificationFields = []string{
	"exteriorColor", "interiorColor", "fuelType", "transmission",
}

// Update describes a partial catalog edit. Nil fields are left untouched.
type Update struct {
	Name          *string
	Brand         *string
	Model         *string
	Year          *int
	Price         *decimal.Decimal
	ExteriorColor *string
	InteriorColor *string
	FuelType      *FuelType
	Transmission  *Transmission
	Mileage       *int
	Category      *Category
	Images        []string
	Description   *string
	Features      []string
	Quantity      *int
}

// Repository defines persistence operations for the vehicle catalog.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, pipe query.Pipeline) ([]Product, query.Meta, error)
	Update(ctx context.Context, id string, upd Update) (*Product, error)
	Delete(ctx context.Context, id string) error

	// ApplyReservation atomically decrements stock by r.Quantity and
	// recomputes the inStock flag in a single conditional update.
	// It fails with ErrOutOfStock, an InsufficientStockError, or
	// ErrStockConflict when the update loses a concurrent race repeatedly.
	ApplyReservation(ctx context.Context, r Reservation) error

	Count(ctx context.Context) (int64, error)
	CountLowStock(ctx context.Context, threshold int) (int64, error)
}
