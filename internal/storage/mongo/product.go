package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/query"
)

// reservationRetries bounds how many times a lost conditional stock update
// is retried before surfacing ErrStockConflict.
const reservationRetries = 3

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	col *mongo.Collection
}

// NewProductRepository returns a ProductRepository over the given database.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{col: db.Collection(productsCollection)}
}

// productDoc is the stored shape of a listing. Field names double as the
// public query-parameter surface for filtering and sorting.
type productDoc struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty"`
	Name          string               `bson:"name"`
	Brand         string               `bson:"brand"`
	Model         string               `bson:"model"`
	Year          int                  `bson:"year"`
	Price         primitive.Decimal128 `bson:"price"`
	ExteriorColor string               `bson:"exteriorColor"`
	InteriorColor string               `bson:"interiorColor"`
	FuelType      string               `bson:"fuelType"`
	Transmission  string               `bson:"transmission"`
	Mileage       int                  `bson:"mileage"`
	Category      string               `bson:"category"`
	Images        []string             `bson:"images"`
	Description   string               `bson:"description"`
	Features      []string             `bson:"features"`
	Quantity      int                  `bson:"quantity"`
	InStock       bool                 `bson:"inStock"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

func (d *productDoc) toDomain() product.Product {
	return product.Product{
		ID:            d.ID.Hex(),
		Name:          d.Name,
		Brand:         d.Brand,
		Model:         d.Model,
		Year:          d.Year,
		Price:         fromDecimal128(d.Price),
		ExteriorColor: d.ExteriorColor,
		InteriorColor: d.InteriorColor,
		FuelType:      product.FuelType(d.FuelType),
		Transmission:  product.Transmission(d.Transmission),
		Mileage:       d.Mileage,
		Category:      product.Category(d.Category),
		Images:        d.Images,
		Description:   d.Description,
		Features:      d.Features,
		Quantity:      d.Quantity,
		InStock:       d.InStock,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// Create inserts a new listing and fills in the generated id and timestamps.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	now := time.Now().UTC()
	doc := productDoc{
		ID:            primitive.NewObjectID(),
		Name:          p.Name,
		Brand:         p.Brand,
		Model:         p.Model,
		Year:          p.Year,
		Price:         toDecimal128(p.Price),
		ExteriorColor: p.ExteriorColor,
		InteriorColor: p.InteriorColor,
		FuelType:      string(p.FuelType),
		Transmission:  string(p.Transmission),
		Mileage:       p.Mileage,
		Category:      string(p.Category),
		Images:        p.Images,
		Description:   p.Description,
		Features:      p.Features,
		Quantity:      p.Quantity,
		InStock:       p.Quantity > 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, "insert product")
	}

	p.ID = doc.ID.Hex()
	p.InStock = doc.InStock
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// CreateMany bulk-inserts listings in one round trip. It is used by the
// catalog ingest tool and intentionally lives outside product.Repository.
func (r *ProductRepository) CreateMany(ctx context.Context, batch []product.Product) error {
	if len(batch) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(batch))
	for i, p := range batch {
		docs[i] = productDoc{
			ID:            primitive.NewObjectID(),
			Name:          p.Name,
			Brand:         p.Brand,
			Model:         p.Model,
			Year:          p.Year,
			Price:         toDecimal128(p.Price),
			ExteriorColor: p.ExteriorColor,
			InteriorColor: p.InteriorColor,
			FuelType:      string(p.FuelType),
			Transmission:  string(p.Transmission),
			Mileage:       p.Mileage,
			Category:      string(p.Category),
			Images:        p.Images,
			Description:   p.Description,
			Features:      p.Features,
			Quantity:      p.Quantity,
			InStock:       p.Quantity > 0,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if _, err := r.col.InsertMany(ctx, docs); err != nil {
		return errors.Wrap(err, "insert products")
	}
	return nil
}

// GetByID returns a single listing by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	oid, err := objectID(id, product.ErrNotFound)
	if err != nil {
		return nil, err
	}

	var doc productDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}

	p := doc.toDomain()
	return &p, nil
}

// List runs the paginated find and the total count concurrently against the
// same predicate, so the page and its meta always agree.
func (r *ProductRepository) List(ctx context.Context, pipe query.Pipeline) ([]product.Product, query.Meta, error) {
	predicate := pipe.Predicate()

	var (
		docs  []productDoc
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := r.col.Find(gctx, predicate, pipe.FindOptions())
		if err != nil {
			return errors.Wrap(err, "find products")
		}
		return cur.All(gctx, &docs)
	})
	g.Go(func() (err error) {
		total, err = r.col.CountDocuments(gctx, predicate)
		return errors.Wrap(err, "count products")
	})
	if err := g.Wait(); err != nil {
		return nil, query.Meta{}, err
	}

	out := make([]product.Product, len(docs))
	for i := range docs {
		out[i] = docs[i].toDomain()
	}
	return out, pipe.Meta(total), nil
}

// Update applies a partial catalog edit and returns the updated listing.
// When the edit touches quantity, inStock is recomputed to keep the derived
// flag consistent.
func (r *ProductRepository) Update(ctx context.Context, id string, upd product.Update) (*product.Product, error) {
	oid, err := objectID(id, product.ErrNotFound)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	setString := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	setInt := func(key string, v *int) {
		if v != nil {
			set[key] = *v
		}
	}

	setString("name", upd.Name)
	setString("brand", upd.Brand)
	setString("model", upd.Model)
	setInt("year", upd.Year)
	setInt("mileage", upd.Mileage)
	setString("description", upd.Description)
	if upd.Price != nil {
		set["price"] = toDecimal128(*upd.Price)
	}
	setString("exteriorColor", upd.ExteriorColor)
	setString("interiorColor", upd.InteriorColor)
	if upd.FuelType != nil {
		set["fuelType"] = string(*upd.FuelType)
	}
	if upd.Transmission != nil {
		set["transmission"] = string(*upd.Transmission)
	}
	if upd.Category != nil {
		set["category"] = string(*upd.Category)
	}
	if upd.Images != nil {
		set["images"] = upd.Images
	}
	if upd.Features != nil {
		set["features"] = upd.Features
	}
	if upd.Quantity != nil {
		set["quantity"] = *upd.Quantity
		set["inStock"] = *upd.Quantity > 0
	}

	var doc productDoc
	err = r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update product %s", id)
	}

	p := doc.toDomain()
	return &p, nil
}

// Delete removes a listing.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id, product.ErrNotFound)
	if err != nil {
		return err
	}

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return errors.Wrapf(err, "delete product %s", id)
	}
	if res.DeletedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

// ApplyReservation performs the check-then-decrement as one conditional
// update: the filter re-validates availability, and a pipeline update
// derives the new quantity and inStock flag from the stored document, not
// from the caller's snapshot. A non-matching update is classified by
// re-reading the listing; a state that should have matched means the update
// lost a concurrent race and is retried up to the bound.
func (r *ProductRepository) ApplyReservation(ctx context.Context, res product.Reservation) error {
	oid, err := objectID(res.ProductID, product.ErrNotFound)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id":      oid,
		"inStock":  true,
		"quantity": bson.M{"$gte": res.Quantity},
	}
	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"quantity":  bson.M{"$subtract": bson.A{"$quantity", res.Quantity}},
			"inStock":   bson.M{"$gt": bson.A{bson.M{"$subtract": bson.A{"$quantity", res.Quantity}}, 0}},
			"updatedAt": "$$NOW",
		}}},
	}

	for attempt := 0; attempt < reservationRetries; attempt++ {
		result, err := r.col.UpdateOne(ctx, filter, update)
		if err != nil {
			return errors.Wrapf(err, "reserve product %s", res.ProductID)
		}
		if result.MatchedCount > 0 {
			return nil
		}

		// The condition failed. Re-read to tell a real availability failure
		// from a lost race.
		p, err := r.GetByID(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if !p.InStock {
			return product.ErrOutOfStock
		}
		if p.Quantity < res.Quantity {
			return &product.InsufficientStockError{
				ProductName: p.Name,
				Available:   p.Quantity,
				Requested:   res.Quantity,
			}
		}
		// Availability looks fine now, so the update raced a concurrent
		// mutation. Try again.
	}

	return product.ErrStockConflict
}

// Count returns the catalog size.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	return n, errors.Wrap(err, "count products")
}

// CountLowStock returns how many listings have quantity below threshold.
func (r *ProductRepository) CountLowStock(ctx context.Context, threshold int) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"quantity": bson.M{"$lt": threshold}})
	return n, errors.Wrap(err, "count low stock")
}
