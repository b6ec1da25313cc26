package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	driverName = "mongo"

	seatsCollection = "seats"
	usersCollection = "users"
	auditCollection = "audit_logs"
)

// Store groups the repositories backed by one database.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Seats() *SeatRepository {
	return &SeatRepository{coll: s.db.Collection(seatsCollection)}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{coll: s.db.Collection(usersCollection)}
}

// Migrate creates the unique indexes the repositories rely on for their atomicity.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(seatsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "section", Value: 1}, {Key: "row", Value: 1}, {Key: "col", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("seat_identity"),
	})
	if err != nil {
		return errors.Wrap(err, "create seat index")
	}
	_, err = s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_email"),
	})
	if err != nil {
		return errors.Wrap(err, "create user index")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}
