// Command seed-db loads a JSON file of vehicle listings and a pair of demo
// accounts into the database, for local development and demos.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/domain/user"
	storagemongo "github.com/xenking/wheelhouse/internal/storage/mongo"
)

type vehicleJSON struct {
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Year          int             `json:"year"`
	Price         decimal.Decimal `json:"price"`
	ExteriorColor string          `json:"exteriorColor"`
	InteriorColor string          `json:"interiorColor"`
	FuelType      string          `json:"fuelType"`
	Transmission  string          `json:"transmission"`
	Mileage       int             `json:"mileage"`
	Category      string          `json:"category"`
	Images        []string        `json:"images"`
	Description   string          `json:"description"`
	Features      []string        `json:"features"`
	Quantity      int             `json:"quantity"`
}

func main() {
	var (
		mongoURL     string
		database     string
		vehiclesFile string
	)

	flag.StringVar(&mongoURL, "mongo-url", "", "MongoDB connection URI (or MONGO_URL env)")
	flag.StringVar(&database, "database", "wheelhouse", "MongoDB database name")
	flag.StringVar(&vehiclesFile, "vehicles-file", "db/seed/vehicles.json", "path to vehicles JSON file")
	flag.Parse()

	if mongoURL == "" {
		mongoURL = os.Getenv("MONGO_URL")
	}
	if mongoURL == "" {
		slog.Error("mongo URL is required: set --mongo-url or MONGO_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, mongoURL, database, vehiclesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, mongoURL, database, vehiclesFile string) error {
	slog.Info("connecting to database")

	db, err := storagemongo.Connect(ctx, mongoURL, database)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	slog.Info("creating indexes")

	if err := storagemongo.EnsureIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "ensure indexes")
	}

	if err := seedVehicles(ctx, storagemongo.NewProductRepository(db), vehiclesFile); err != nil {
		return errors.Wrap(err, "seed vehicles")
	}

	if err := seedUsers(ctx, storagemongo.NewUserRepository(db)); err != nil {
		return errors.Wrap(err, "seed users")
	}

	return nil
}

func seedVehicles(ctx context.Context, repo *storagemongo.ProductRepository, vehiclesFile string) error {
	slog.Info("reading vehicles file", slog.String("path", vehiclesFile))

	data, err := os.ReadFile(vehiclesFile)
	if err != nil {
		return errors.Wrap(err, "read vehicles file")
	}

	var vehicles []vehicleJSON
	if err := json.Unmarshal(data, &vehicles); err != nil {
		return errors.Wrap(err, "parse vehicles JSON")
	}

	slog.Info("inserting vehicles", slog.Int("count", len(vehicles)))

	for _, v := range vehicles {
		p := &product.Product{
			Name:          v.Name,
			Brand:         v.Brand,
			Model:         v.Model,
			Year:          v.Year,
			Price:         v.Price,
			ExteriorColor: v.ExteriorColor,
			InteriorColor: v.InteriorColor,
			FuelType:      product.FuelType(v.FuelType),
			Transmission:  product.Transmission(v.Transmission),
			Mileage:       v.Mileage,
			Category:      product.Category(v.Category),
			Images:        v.Images,
			Description:   v.Description,
			Features:      v.Features,
			Quantity:      v.Quantity,
		}
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "insert vehicle %s", v.Name)
		}

		slog.Info("inserted vehicle", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedUsers(ctx context.Context, repo *storagemongo.UserRepository) error {
	slog.Info("seeding demo accounts")

	users := []*user.User{
		{
			Name:    "Demo Buyer",
			Email:   "buyer@example.com",
			Role:    user.RoleUser,
			Address: "12 Harbor Road",
			Phone:   "+8801700000001",
			City:    "Dhaka",
		},
		{
			Name:    "Demo Admin",
			Email:   "admin@example.com",
			Role:    user.RoleAdmin,
			Address: "1 Market Street",
			Phone:   "+8801700000002",
			City:    "Dhaka",
		},
	}

	for _, u := range users {
		if err := repo.Create(ctx, u); err != nil {
			return errors.Wrapf(err, "insert user %s", u.Email)
		}

		slog.Info("inserted user", slog.String("id", u.ID), slog.String("email", u.Email))
	}

	return nil
}
