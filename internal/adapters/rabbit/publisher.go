package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/seat-reservations/internal/domain"
)

const (
	Exchange          = "seats.events"
	SeatBookedRouting = "seat.booked"
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
}

type SeatBooked struct {
	Section  string         `json:"section"`
	Row      int            `json:"row"`
	Col      int            `json:"col"`
	Outcome  domain.Outcome `json:"outcome"`
	BookedAt time.Time      `json:"booked_at"`
}

func (p *Publisher) PublishSeatBooked(ctx context.Context, res domain.Reservation) error {
	payload, err := json.Marshal(SeatBooked{
		Section:  res.Seat.Section,
		Row:      res.Seat.Row,
		Col:      res.Seat.Col,
		Outcome:  res.Outcome,
		BookedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.Publish(ctx, SeatBookedRouting, amqp.Publishing{
		MessageId:    uuid.New().String(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
