package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserRepository struct {
	coll *mongo.Collection
}

func (r *UserRepository) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrUserExists
	}
	return errors.Wrap(err, "create user")
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user by email")
	}
	return &u, nil
}
