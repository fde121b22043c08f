package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/wheelhouse/internal/domain/order"
	"github.com/xenking/wheelhouse/internal/payment"
	"github.com/xenking/wheelhouse/internal/query"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	col *mongo.Collection
}

// NewOrderRepository returns an OrderRepository over the given database.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{col: db.Collection(ordersCollection)}
}

type lineItemDoc struct {
	Product  primitive.ObjectID `bson:"product"`
	Quantity int                `bson:"quantity"`
}

type transactionDoc struct {
	ID                string `bson:"id,omitempty"`
	TransactionStatus string `bson:"transactionStatus,omitempty"`
	BankStatus        string `bson:"bank_status,omitempty"`
	SPCode            string `bson:"sp_code,omitempty"`
	SPMessage         string `bson:"sp_message,omitempty"`
	Method            string `bson:"method,omitempty"`
	DateTime          string `bson:"date_time,omitempty"`
}

type orderDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	User        primitive.ObjectID   `bson:"user"`
	Products    []lineItemDoc        `bson:"products"`
	TotalPrice  primitive.Decimal128 `bson:"totalPrice"`
	Status      string               `bson:"status"`
	Transaction transactionDoc       `bson:"transaction,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func (d *orderDoc) toDomain() order.Order {
	items := make([]order.LineItem, len(d.Products))
	for i, li := range d.Products {
		items[i] = order.LineItem{
			ProductID: li.Product.Hex(),
			Quantity:  li.Quantity,
		}
	}
	return order.Order{
		ID:         d.ID.Hex(),
		UserID:     d.User.Hex(),
		Items:      items,
		TotalPrice: fromDecimal128(d.TotalPrice),
		Status:     order.Status(d.Status),
		Transaction: order.Transaction{
			ID:                d.Transaction.ID,
			TransactionStatus: d.Transaction.TransactionStatus,
			BankStatus:        d.Transaction.BankStatus,
			SPCode:            d.Transaction.SPCode,
			SPMessage:         d.Transaction.SPMessage,
			Method:            d.Transaction.Method,
			DateTime:          d.Transaction.DateTime,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Create persists a new order and fills in the generated id and timestamps.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	uid, err := objectID(o.UserID, order.ErrNotFound)
	if err != nil {
		return err
	}

	items := make([]lineItemDoc, len(o.Items))
	for i, li := range o.Items {
		pid, err := objectID(li.ProductID, order.ErrNotFound)
		if err != nil {
			return err
		}
		items[i] = lineItemDoc{Product: pid, Quantity: li.Quantity}
	}

	now := time.Now().UTC()
	doc := orderDoc{
		ID:         primitive.NewObjectID(),
		User:       uid,
		Products:   items,
		TotalPrice: toDecimal128(o.TotalPrice),
		Status:     string(o.Status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, "insert order")
	}

	o.ID = doc.ID.Hex()
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

// AttachTransaction records the gateway session reference on an order via a
// field-level update.
func (r *OrderRepository) AttachTransaction(ctx context.Context, orderID, sessionID, transactionStatus string) error {
	oid, err := objectID(orderID, order.ErrNotFound)
	if err != nil {
		return err
	}

	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"transaction.id":                sessionID,
		"transaction.transactionStatus": transactionStatus,
		"updatedAt":                     time.Now().UTC(),
	}})
	if err != nil {
		return errors.Wrapf(err, "attach transaction to %s", orderID)
	}
	if res.MatchedCount == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ApplyVerification copies a gateway verification record into the order
// matched by its transaction id. Applying the same record twice leaves the
// order in the same state.
func (r *OrderRepository) ApplyVerification(ctx context.Context, transactionID string, rec payment.VerificationRecord, status order.Status, setStatus bool) error {
	set := bson.M{
		"transaction.bank_status":       rec.BankStatus,
		"transaction.sp_code":           rec.SPCode,
		"transaction.sp_message":        rec.SPMessage,
		"transaction.transactionStatus": rec.TransactionStatus,
		"transaction.method":            rec.Method,
		"transaction.date_time":         rec.DateTime,
		"updatedAt":                     time.Now().UTC(),
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"transaction.id": transactionID}, bson.M{"$set": set})
	if err != nil {
		return errors.Wrapf(err, "apply verification for %s", transactionID)
	}
	if res.MatchedCount == 0 {
		return order.ErrNotFound
	}

	if !setStatus {
		return nil
	}

	// The status moves only along the lifecycle state machine. A late or
	// repeated gateway answer never pulls an order out of a terminal state
	// or backwards from a later one; the transaction record above is still
	// refreshed either way.
	allowed := order.StatusesAllowedInto(status)
	from := make([]string, 0, len(allowed))
	for _, s := range allowed {
		from = append(from, string(s))
	}
	_, err = r.col.UpdateOne(ctx,
		bson.M{"transaction.id": transactionID, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return errors.Wrapf(err, "apply verification status for %s", transactionID)
	}
	return nil
}

// List runs the paginated find and the total count concurrently against the
// same predicate.
func (r *OrderRepository) List(ctx context.Context, pipe query.Pipeline) ([]order.Order, query.Meta, error) {
	return r.list(ctx, pipe.Predicate(), pipe)
}

// ListByUser scopes the listing to one owner on top of the client predicate.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pipe query.Pipeline) ([]order.Order, query.Meta, error) {
	uid, err := objectID(userID, order.ErrNotFound)
	if err != nil {
		return nil, query.Meta{}, err
	}

	predicate := pipe.Predicate()
	scoped := bson.M{"user": uid}
	if len(predicate) > 0 {
		scoped = bson.M{"$and": []bson.M{{"user": uid}, predicate}}
	}
	return r.list(ctx, scoped, pipe)
}

func (r *OrderRepository) list(ctx context.Context, predicate bson.M, pipe query.Pipeline) ([]order.Order, query.Meta, error) {
	var (
		docs  []orderDoc
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := r.col.Find(gctx, predicate, pipe.FindOptions())
		if err != nil {
			return errors.Wrap(err, "find orders")
		}
		return cur.All(gctx, &docs)
	})
	g.Go(func() (err error) {
		total, err = r.col.CountDocuments(gctx, predicate)
		return errors.Wrap(err, "count orders")
	})
	if err := g.Wait(); err != nil {
		return nil, query.Meta{}, err
	}

	out := make([]order.Order, len(docs))
	for i := range docs {
		out[i] = docs[i].toDomain()
	}
	return out, pipe.Meta(total), nil
}

// Stats aggregates order history for the operations dashboard: the total
// count, total revenue, per-status counts, and monthly revenue grouped by
// calendar month of creation.
func (r *OrderRepository) Stats(ctx context.Context) (*order.StatsSummary, error) {
	summary := &order.StatsSummary{
		TotalRevenue: decimal.Zero,
		StatusCounts: make(map[order.Status]int64),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		summary.TotalOrders, err = r.col.CountDocuments(gctx, bson.M{})
		return errors.Wrap(err, "count orders")
	})

	g.Go(func() error {
		cur, err := r.col.Aggregate(gctx, mongo.Pipeline{
			bson.D{{Key: "$group", Value: bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$totalPrice"},
			}}},
		})
		if err != nil {
			return errors.Wrap(err, "aggregate revenue")
		}
		var rows []struct {
			Total primitive.Decimal128 `bson:"total"`
		}
		if err := cur.All(gctx, &rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			summary.TotalRevenue = fromDecimal128(rows[0].Total)
		}
		return nil
	})

	g.Go(func() error {
		cur, err := r.col.Aggregate(gctx, mongo.Pipeline{
			bson.D{{Key: "$group", Value: bson.M{
				"_id":   "$status",
				"count": bson.M{"$sum": 1},
			}}},
		})
		if err != nil {
			return errors.Wrap(err, "aggregate status counts")
		}
		var rows []struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cur.All(gctx, &rows); err != nil {
			return err
		}
		for _, row := range rows {
			summary.StatusCounts[order.Status(row.Status)] = row.Count
		}
		return nil
	})

	g.Go(func() error {
		cur, err := r.col.Aggregate(gctx, mongo.Pipeline{
			bson.D{{Key: "$group", Value: bson.M{
				"_id":     bson.M{"$month": "$createdAt"},
				"revenue": bson.M{"$sum": "$totalPrice"},
			}}},
			bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
		})
		if err != nil {
			return errors.Wrap(err, "aggregate monthly revenue")
		}
		var rows []struct {
			Month   int32                `bson:"_id"`
			Revenue primitive.Decimal128 `bson:"revenue"`
		}
		if err := cur.All(gctx, &rows); err != nil {
			return err
		}
		summary.Monthly = make([]order.MonthlyRevenue, len(rows))
		for i, row := range rows {
			summary.Monthly[i] = order.MonthlyRevenue{
				Month:   time.Month(row.Month),
				Revenue: fromDecimal128(row.Revenue),
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

// UserStats computes the per-user rollup in a single $facet aggregation:
// order count, total spend, units purchased, and per-status counts. The
// status map stays sparse — only statuses that occur appear.
func (r *OrderRepository) UserStats(ctx context.Context, userID string) (*order.UserSummary, error) {
	uid, err := objectID(userID, order.ErrNotFound)
	if err != nil {
		return nil, err
	}

	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"user": uid}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"totalOrders": []bson.M{
				{"$count": "count"},
			},
			"totalSpent": []bson.M{
				{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$totalPrice"}}},
			},
			"totalProducts": []bson.M{
				{"$unwind": "$products"},
				{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$products.quantity"}}},
			},
			"orderStatus": []bson.M{
				{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
			},
		}}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate user stats for %s", userID)
	}

	var rows []struct {
		TotalOrders []struct {
			Count int64 `bson:"count"`
		} `bson:"totalOrders"`
		TotalSpent []struct {
			Total primitive.Decimal128 `bson:"total"`
		} `bson:"totalSpent"`
		TotalProducts []struct {
			Total int64 `bson:"total"`
		} `bson:"totalProducts"`
		OrderStatus []struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		} `bson:"orderStatus"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	summary := &order.UserSummary{
		TotalSpent:   decimal.Zero,
		StatusCounts: make(map[order.Status]int64),
	}
	if len(rows) == 0 {
		return summary, nil
	}

	row := rows[0]
	if len(row.TotalOrders) > 0 {
		summary.TotalOrders = row.TotalOrders[0].Count
	}
	if len(row.TotalSpent) > 0 {
		summary.TotalSpent = fromDecimal128(row.TotalSpent[0].Total)
	}
	if len(row.TotalProducts) > 0 {
		summary.TotalProducts = row.TotalProducts[0].Total
	}
	for _, st := range row.OrderStatus {
		summary.StatusCounts[order.Status(st.Status)] = st.Count
	}
	return summary, nil
}
