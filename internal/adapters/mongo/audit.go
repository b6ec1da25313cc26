package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection(auditCollection),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	Requester string    `bson:"requester,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, requester string, data bson.M) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Requester: requester,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogBooking(ctx context.Context, requester string, result domain.BookingResult) error {
	action := "seats.booked"
	if result.Conflict != nil {
		action = "seats.conflict"
	}
	data := bson.M{
		"committed":    seatStrings(result.Committed()),
		"reservations": result.Reservations,
	}
	if result.Conflict != nil {
		data["conflict"] = result.Conflict.String()
	}
	return a.LogEvent(ctx, action, requester, data)
}

func seatStrings(ids []domain.SeatID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
