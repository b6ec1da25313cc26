package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/robertarktes/seat-reservations/internal/idempotency"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"golang.org/x/sync/errgroup"
)

type BookingService interface {
	BookSeats(ctx context.Context, requester string, ids []domain.SeatID) (domain.BookingResult, error)
	ListSeats(ctx context.Context) ([]domain.Seat, error)
	FindSeat(ctx context.Context, id domain.SeatID) (*domain.Seat, error)
}

type AuthService interface {
	Signup(ctx context.Context, username, email, password string) (domain.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Authenticate(token string) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	booking BookingService
	auth    AuthService
	idemp   *idempotency.Idempotency
	checks  map[string]Pinger
	logger  observability.Logger
}

// NewHandlers wires the API. idemp may be nil, which disables Idempotency-Key replay.
func NewHandlers(booking BookingService, auth AuthService, idemp *idempotency.Idempotency, checks map[string]Pinger, logger observability.Logger) *Handlers {
	return &Handlers{
		booking: booking,
		auth:    auth,
		idemp:   idemp,
		checks:  checks,
		logger:  logger,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type signupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type seatRequest struct {
	Section *string `json:"section" validate:"required"`
	Row     *int    `json:"row" validate:"required"`
	Col     *int    `json:"col" validate:"required"`
}

func (s seatRequest) id() domain.SeatID {
	return domain.SeatID{Section: *s.Section, Row: *s.Row, Col: *s.Col}
}

// bookRequest accepts {"seats":[...]} or a single {"section","row","col"}.
type bookRequest struct {
	Seats []seatRequest `json:"seats"`
	seatRequest
}

func (b bookRequest) ids() ([]domain.SeatID, error) {
	reqs := b.Seats
	if len(reqs) == 0 {
		if b.Section == nil && b.Row == nil && b.Col == nil {
			return nil, domain.Invalid("seats are required")
		}
		reqs = []seatRequest{b.seatRequest}
	}
	ids := make([]domain.SeatID, 0, len(reqs))
	for i, r := range reqs {
		if err := validate.Struct(r); err != nil {
			return nil, domain.Invalid("seat %d: section, row and col are required", i)
		}
		ids = append(ids, r.id())
	}
	return ids, nil
}

type seatOutcome struct {
	Section string         `json:"section"`
	Row     int            `json:"row"`
	Col     int            `json:"col"`
	Outcome domain.Outcome `json:"outcome"`
}

func outcomes(result domain.BookingResult) []seatOutcome {
	out := make([]seatOutcome, 0, len(result.Reservations))
	for _, r := range result.Reservations {
		out = append(out, seatOutcome{Section: r.Seat.Section, Row: r.Seat.Row, Col: r.Seat.Col, Outcome: r.Outcome})
	}
	return out
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "username, a valid email and password are required")
		return
	}

	user, token, err := h.auth.Signup(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, domain.ErrUserExists):
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log(r).WithError(err).Error("signup failed")
		writeError(w, http.StatusInternalServerError, "Error signing up")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"username": user.Username,
		"token":    token,
		"message":  "Signup successful",
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	case err != nil:
		h.log(r).WithError(err).Error("login failed")
		writeError(w, http.StatusInternalServerError, "Error logging in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"message": "Login successful",
	})
}

func (h *Handlers) ListSeats(w http.ResponseWriter, r *http.Request) {
	seats, err := h.booking.ListSeats(r.Context())
	if err != nil {
		h.log(r).WithError(err).Error("list seats failed")
		writeError(w, http.StatusInternalServerError, "Error fetching seats")
		return
	}
	writeJSON(w, http.StatusOK, seats)
}

func (h *Handlers) GetSeat(w http.ResponseWriter, r *http.Request) {
	row, rowErr := strconv.Atoi(chi.URLParam(r, "row"))
	col, colErr := strconv.Atoi(chi.URLParam(r, "col"))
	if rowErr != nil || colErr != nil {
		writeError(w, http.StatusBadRequest, "row and col must be integers")
		return
	}

	seat, err := h.booking.FindSeat(r.Context(), domain.SeatID{Section: chi.URLParam(r, "section"), Row: row, Col: col})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "seat not found")
		return
	case err != nil:
		h.log(r).WithError(err).Error("find seat failed")
		writeError(w, http.StatusInternalServerError, "Error fetching seat")
		return
	}
	writeJSON(w, http.StatusOK, seat)
}

// BookSeat reserves the requested seats in order and stops at the first seat that is
// already booked. There is no rollback: a conflict response lists in "committed" the
// seats from this request that stay booked.
func (h *Handlers) BookSeat(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids, err := req.ids()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject := SubjectFromContext(r.Context())

	key, fingerprint, claimed := r.Header.Get("Idempotency-Key"), "", false
	if key != "" && h.idemp != nil {
		key = "book-seat:" + key
		fingerprint = bookingFingerprint(subject, ids)
		replay, ok, err := h.idemp.Begin(r.Context(), key, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
			return
		case errors.Is(err, idempotency.ErrKeyReused):
			writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request")
			return
		case err != nil:
			h.log(r).WithError(err).Warn("idempotency claim failed")
		case replay != nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(replay.Status)
			w.Write(replay.Result)
			return
		}
		claimed = ok
	}

	result, err := h.booking.BookSeats(r.Context(), subject, ids)
	status, body := bookingResponse(result, err)
	if status == http.StatusInternalServerError {
		h.log(r).WithError(err).Error("book seats failed")
	}

	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	if !claimed {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if status == http.StatusInternalServerError {
		// Store failures are not final; let a retry run again.
		if err := h.idemp.Abandon(ctx, key); err != nil {
			h.log(r).WithError(err).Warn("idempotency release failed")
		}
		return
	}
	if err := h.idemp.Complete(ctx, key, fingerprint, idempotency.Response{Status: status, Result: data}); err != nil {
		h.log(r).WithError(err).Warn("idempotency store failed")
	}
}

func bookingFingerprint(subject string, ids []domain.SeatID) string {
	seats, _ := json.Marshal(ids)
	return idempotency.Fingerprint(subject, string(seats))
}

func bookingResponse(result domain.BookingResult, err error) (int, map[string]interface{}) {
	var conflict *domain.ConflictError
	switch {
	case err == nil:
		status := http.StatusOK
		if result.Created() {
			status = http.StatusCreated
		}
		return status, map[string]interface{}{
			"message": "Seats booked successfully",
			"seats":   outcomes(result),
		}
	case errors.As(err, &conflict):
		return http.StatusBadRequest, map[string]interface{}{
			"error":     conflict.Error(),
			"conflict":  conflict.Seat,
			"committed": conflict.Committed,
			"partial":   len(conflict.Committed) > 0,
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, map[string]interface{}{"error": err.Error()}
	default:
		return http.StatusInternalServerError, map[string]interface{}{
			"error":     "Error booking seats",
			"committed": result.Committed(),
		}
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			return errors.Wrap(check.Ping(gctx), name)
		})
	}
	if err := g.Wait(); err != nil {
		h.log(r).WithError(err).Warn("readiness check failed")
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) log(r *http.Request) observability.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
