package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/robertarktes/seat-reservations/internal/observability"
)

const maxSerializationRetries = 3

type SeatRepository struct {
	pool *pgxpool.Pool
	repo *Repository
}

func (r *SeatRepository) FindSeat(ctx context.Context, id domain.SeatID) (*domain.Seat, error) {
	defer observability.ObserveStoreOp(driverName, "find", time.Now())

	seat := domain.Seat{SeatID: id}
	err := r.pool.QueryRow(ctx, `
		SELECT booked FROM seats WHERE section = $1 AND row_no = $2 AND col_no = $3
	`, id.Section, id.Row, id.Col).Scan(&seat.Booked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find seat %s", id)
	}
	return &seat, nil
}

func (r *SeatRepository) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	defer observability.ObserveStoreOp(driverName, "list", time.Now())

	rows, err := r.pool.Query(ctx, `
		SELECT section, row_no, col_no, booked FROM seats ORDER BY section, row_no, col_no
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list seats")
	}
	defer rows.Close()

	seats := []domain.Seat{}
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.Section, &s.Row, &s.Col, &s.Booked); err != nil {
			return nil, errors.Wrap(err, "scan seat")
		}
		seats = append(seats, s)
	}
	return seats, errors.Wrap(rows.Err(), "list seats")
}

// ReserveSeat books a seat with two conditional writes and no read. The insert only
// succeeds for an absent seat; the update only succeeds while booked is false. Seat rows
// are never deleted, so once the insert is refused the update alone decides the winner.
func (r *SeatRepository) ReserveSeat(ctx context.Context, id domain.SeatID) (domain.Outcome, error) {
	defer observability.ObserveStoreOp(driverName, "reserve", time.Now())

	var (
		outcome domain.Outcome
		err     error
	)
	// A 40001 means the statement was aborted without effect; reissuing it is the
	// client side of CockroachDB's serializable retry protocol.
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		outcome, err = r.reserveOnce(ctx, id)
		if err == nil || !isCode(err, SerializationFailureCode) {
			break
		}
	}
	return outcome, err
}

func (r *SeatRepository) reserveOnce(ctx context.Context, id domain.SeatID) (domain.Outcome, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO seats (section, row_no, col_no, booked)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (section, row_no, col_no) DO NOTHING
	`, id.Section, id.Row, id.Col)
	if err != nil {
		return "", errors.Wrapf(err, "insert seat %s", id)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeCreatedAndBooked, nil
	}

	tag, err = r.pool.Exec(ctx, `
		UPDATE seats SET booked = true, updated_at = now()
		WHERE section = $1 AND row_no = $2 AND col_no = $3 AND booked = false
	`, id.Section, id.Row, id.Col)
	if err != nil {
		return "", errors.Wrapf(err, "book seat %s", id)
	}
	if tag.RowsAffected() == 1 {
		return domain.OutcomeBooked, nil
	}
	return domain.OutcomeAlreadyBooked, nil
}

// SeedCatalog inserts absent seats unbooked and leaves existing ones alone.
func (r *SeatRepository) SeedCatalog(ctx context.Context, ids []domain.SeatID) (int, error) {
	defer observability.ObserveStoreOp(driverName, "seed", time.Now())

	if len(ids) == 0 {
		return 0, nil
	}
	inserted := 0
	err := r.repo.WithTx(ctx, func(tx pgx.Tx) error {
		inserted = 0
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(`
				INSERT INTO seats (section, row_no, col_no, booked)
				VALUES ($1, $2, $3, false)
				ON CONFLICT (section, row_no, col_no) DO NOTHING
			`, id.Section, id.Row, id.Col)
		}
		br := tx.SendBatch(ctx, batch)
		for range ids {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, errors.Wrap(err, "seed catalog")
	}
	return inserted, nil
}
