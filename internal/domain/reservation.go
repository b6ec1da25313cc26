package domain

import (
	"fmt"
	"strings"
)

// Outcome is the result of a single atomic reservation attempt.
type Outcome string

const (
	OutcomeCreatedAndBooked Outcome = "created-and-booked"
	OutcomeBooked           Outcome = "booked"
	OutcomeAlreadyBooked    Outcome = "already-booked"
)

// Reserved reports whether the caller now holds the seat.
func (o Outcome) Reserved() bool {
	return o == OutcomeCreatedAndBooked || o == OutcomeBooked
}

type Reservation struct {
	Seat    SeatID  `json:"seat"`
	Outcome Outcome `json:"outcome"`
}

// ConflictError reports the first already-booked seat of a batch together with the
// seats that were committed before it. Committed seats stay booked.
type ConflictError struct {
	Seat      SeatID
	Committed []SeatID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Seat %s is already booked", e.Seat)
}

func (e *ConflictError) Unwrap() error {
	return ErrSeatAlreadyBooked
}

// Detail describes the partial commit, if any, for logs.
func (e *ConflictError) Detail() string {
	if len(e.Committed) == 0 {
		return "nothing committed"
	}
	ids := make([]string, len(e.Committed))
	for i, id := range e.Committed {
		ids[i] = id.String()
	}
	return "committed before conflict: " + strings.Join(ids, ", ")
}

// ValidateBatch checks every identity of a batch before any of them is reserved.
func ValidateBatch(ids []SeatID) error {
	if len(ids) == 0 {
		return Invalid("at least one seat is required")
	}
	seen := make(map[SeatID]struct{}, len(ids))
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return Invalid("seat %s requested more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// BookingResult holds the per-seat outcomes of one batch in request order. When the batch
// stopped on a conflict, Conflict names the seat and the last reservation carries
// OutcomeAlreadyBooked; seats after it were not attempted.
type BookingResult struct {
	Reservations []Reservation `json:"seats"`
	Conflict     *SeatID       `json:"conflict,omitempty"`
}

// Committed returns the seats this batch reserved.
func (r BookingResult) Committed() []SeatID {
	ids := []SeatID{}
	for _, res := range r.Reservations {
		if res.Outcome.Reserved() {
			ids = append(ids, res.Seat)
		}
	}
	return ids
}

// Created reports whether any seat record was created by this batch.
func (r BookingResult) Created() bool {
	for _, res := range r.Reservations {
		if res.Outcome == OutcomeCreatedAndBooked {
			return true
		}
	}
	return false
}

// Partial reports a conflict that happened after at least one seat was committed.
func (r BookingResult) Partial() bool {
	return r.Conflict != nil && len(r.Committed()) > 0
}
