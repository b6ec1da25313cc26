// Package booking reserves batches of seats on top of a store's atomic per-seat primitive.
//
// Batches are all-or-nothing without rollback: seats are reserved in request order and
// the first seat that is already booked stops the batch. Seats reserved before the
// conflict stay booked, because booking cannot be undone. Callers must read
// BookingResult.Committed (or ConflictError.Committed) to learn what was kept.
package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type SeatStore interface {
	FindSeat(ctx context.Context, id domain.SeatID) (*domain.Seat, error)
	ListSeats(ctx context.Context) ([]domain.Seat, error)
	// ReserveSeat must be a single conditional write: among concurrent callers for
	// one seat exactly one may observe a reserved outcome.
	ReserveSeat(ctx context.Context, id domain.SeatID) (domain.Outcome, error)
}

type SeatsCache interface {
	GetSeats(ctx context.Context) ([]domain.Seat, bool, error)
	SetSeats(ctx context.Context, seats []domain.Seat, ttl time.Duration) error
	InvalidateSeats(ctx context.Context) error
}

type Auditor interface {
	LogBooking(ctx context.Context, requester string, result domain.BookingResult) error
}

type EventPublisher interface {
	PublishSeatBooked(ctx context.Context, res domain.Reservation) error
}

type Option func(*Service)

func WithCache(cache SeatsCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

type Service struct {
	store    SeatStore
	logger   observability.Logger
	cache    SeatsCache
	cacheTTL time.Duration
	audit    Auditor
	events   EventPublisher
	tracer   trace.Tracer
}

func NewService(store SeatStore, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookSeats reserves ids in order. On the first already-booked seat it returns the
// partial result together with a *domain.ConflictError. A store failure also stops the
// batch and is returned wrapped; seats reserved before it stay booked. Conflicts and
// store failures are never retried here.
//
// requester is only recorded in the audit trail.
func (s *Service) BookSeats(ctx context.Context, requester string, ids []domain.SeatID) (domain.BookingResult, error) {
	if err := domain.ValidateBatch(ids); err != nil {
		return domain.BookingResult{}, err
	}

	// Writes already dispatched must not be abandoned when the client goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "booking.BookSeats", trace.WithAttributes(attribute.Int("seats.requested", len(ids))))
	defer span.End()

	result := domain.BookingResult{Reservations: make([]domain.Reservation, 0, len(ids))}
	var err error
	for _, id := range ids {
		outcome, rerr := s.store.ReserveSeat(ctx, id)
		if rerr != nil {
			err = errors.Wrapf(rerr, "reserve seat %s", id)
			break
		}
		observability.ReservationsTotal.WithLabelValues(string(outcome)).Inc()
		result.Reservations = append(result.Reservations, domain.Reservation{Seat: id, Outcome: outcome})

		if outcome == domain.OutcomeAlreadyBooked {
			conflict := &domain.ConflictError{Seat: id, Committed: result.Committed()}
			observability.LoggerFromContext(ctx, s.logger).WithField("seat", id.String()).Info(conflict.Detail())
			result.Conflict = &conflict.Seat
			err = conflict
			break
		}
	}

	committed := result.Committed()
	span.SetAttributes(attribute.Int("seats.committed", len(committed)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.afterBatch(ctx, requester, result, committed)
	return result, err
}

// afterBatch runs the side effects of a batch. Their failures are logged only.
func (s *Service) afterBatch(ctx context.Context, requester string, result domain.BookingResult, committed []domain.SeatID) {
	logger := observability.LoggerFromContext(ctx, s.logger)

	if len(committed) > 0 && s.cache != nil {
		if err := s.cache.InvalidateSeats(ctx); err != nil {
			observability.SideEffectFailures.WithLabelValues("cache").Inc()
			logger.WithError(err).Warn("failed to invalidate seat cache")
		}
	}

	if s.events != nil {
		for _, res := range result.Reservations {
			if !res.Outcome.Reserved() {
				continue
			}
			if err := s.events.PublishSeatBooked(ctx, res); err != nil {
				observability.SideEffectFailures.WithLabelValues("event").Inc()
				logger.WithError(err).WithField("seat", res.Seat.String()).Warn("failed to publish seat.booked")
			}
		}
	}

	if s.audit != nil && len(result.Reservations) > 0 {
		if err := s.audit.LogBooking(ctx, requester, result); err != nil {
			observability.SideEffectFailures.WithLabelValues("audit").Inc()
			logger.WithError(err).Warn("failed to write booking audit log")
		}
	}
}

// ListSeats returns every known seat ordered by section, row and column.
func (s *Service) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)

	if s.cache != nil {
		seats, ok, err := s.cache.GetSeats(ctx)
		if err != nil {
			logger.WithError(err).Warn("seat cache read failed")
		}
		if ok {
			return seats, nil
		}
	}

	seats, err := s.store.ListSeats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list seats")
	}

	if s.cache != nil {
		if err := s.cache.SetSeats(ctx, seats, s.cacheTTL); err != nil {
			logger.WithError(err).Warn("seat cache write failed")
		}
	}
	return seats, nil
}

func (s *Service) FindSeat(ctx context.Context, id domain.SeatID) (*domain.Seat, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.store.FindSeat(ctx, id)
}
