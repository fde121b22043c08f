package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xenking/wheelhouse/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by MongoDB.
type UserRepository struct {
	col *mongo.Collection
}

// NewUserRepository returns a UserRepository over the given database.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(usersCollection)}
}

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Role      string             `bson:"role"`
	Address   string             `bson:"address,omitempty"`
	Phone     string             `bson:"phone,omitempty"`
	City      string             `bson:"city,omitempty"`
	IsDeleted bool               `bson:"isDeleted"`
	IsBlocked bool               `bson:"isBlocked"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toDomain() user.User {
	return user.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Role:      user.Role(d.Role),
		Address:   d.Address,
		Phone:     d.Phone,
		City:      d.City,
		IsDeleted: d.IsDeleted,
		IsBlocked: d.IsBlocked,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Create inserts a new account and fills in the generated id.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Address:   u.Address,
		Phone:     u.Phone,
		City:      u.City,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, "insert user")
	}

	u.ID = doc.ID.Hex()
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// FindByEmail returns the account registered under email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByID returns the account with the given id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	oid, err := objectID(id, user.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*user.User, error) {
	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrap(err, "find user")
	}

	u := doc.toDomain()
	return &u, nil
}
