package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SeatRepository struct {
	coll *mongo.Collection
}

type seatDoc struct {
	Section   string    `bson:"section"`
	Row       int       `bson:"row"`
	Col       int       `bson:"col"`
	Booked    bool      `bson:"booked"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d seatDoc) seat() domain.Seat {
	return domain.Seat{
		SeatID: domain.SeatID{Section: d.Section, Row: d.Row, Col: d.Col},
		Booked: d.Booked,
	}
}

func identity(id domain.SeatID) bson.M {
	return bson.M{"section": id.Section, "row": id.Row, "col": id.Col}
}

func (r *SeatRepository) FindSeat(ctx context.Context, id domain.SeatID) (*domain.Seat, error) {
	defer observability.ObserveStoreOp(driverName, "find", time.Now())

	var doc seatDoc
	err := r.coll.FindOne(ctx, identity(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find seat %s", id)
	}
	seat := doc.seat()
	return &seat, nil
}

func (r *SeatRepository) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	defer observability.ObserveStoreOp(driverName, "list", time.Now())

	opts := options.Find().SetSort(bson.D{{Key: "section", Value: 1}, {Key: "row", Value: 1}, {Key: "col", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list seats")
	}
	var docs []seatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode seats")
	}
	seats := make([]domain.Seat, 0, len(docs))
	for _, d := range docs {
		seats = append(seats, d.seat())
	}
	return seats, nil
}

// ReserveSeat is a single upserting find-and-modify that only matches an unbooked seat.
// When the seat exists but is booked, the upsert collides with the seat_identity index.
func (r *SeatRepository) ReserveSeat(ctx context.Context, id domain.SeatID) (domain.Outcome, error) {
	defer observability.ObserveStoreOp(driverName, "reserve", time.Now())

	filter := identity(id)
	filter["booked"] = false
	update := bson.M{"$set": bson.M{"booked": true, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Err()
	switch {
	case err == nil:
		return domain.OutcomeBooked, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.OutcomeCreatedAndBooked, nil
	case mongo.IsDuplicateKeyError(err):
		return domain.OutcomeAlreadyBooked, nil
	default:
		return "", errors.Wrapf(err, "reserve seat %s", id)
	}
}

// SeedCatalog upserts every seat with $setOnInsert so existing records are not touched.
func (r *SeatRepository) SeedCatalog(ctx context.Context, ids []domain.SeatID) (int, error) {
	defer observability.ObserveStoreOp(driverName, "seed", time.Now())

	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(ids))
	for _, id := range ids {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(identity(id)).
			SetUpdate(bson.M{"$setOnInsert": bson.M{"booked": false, "updated_at": now}}).
			SetUpsert(true))
	}
	res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, errors.Wrap(err, "seed catalog")
	}
	return int(res.UpsertedCount), nil
}
