package crdb_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservations/internal/adapters/crdb"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRepository(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	require.NoError(t, err)
	port, err := crdbContainer.MappedPort(ctx, "26257")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, "postgresql://root@"+host+":"+port.Port()+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestSeatRepository(t *testing.T) {
	repo := setupRepository(t)
	seats := repo.Seats()
	ctx := context.Background()

	sofa11 := domain.SeatID{Section: "Sofa", Row: 1, Col: 1}
	sofa12 := domain.SeatID{Section: "Sofa", Row: 1, Col: 2}

	t.Run("seed is idempotent", func(t *testing.T) {
		n, err := seats.SeedCatalog(ctx, []domain.SeatID{sofa11, sofa12})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = seats.SeedCatalog(ctx, []domain.SeatID{sofa11, sofa12})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		all, err := seats.ListSeats(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.Seat{{SeatID: sofa11}, {SeatID: sofa12}}, all)
	})

	t.Run("book seeded seat once", func(t *testing.T) {
		outcome, err := seats.ReserveSeat(ctx, sofa11)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeBooked, outcome)

		outcome, err = seats.ReserveSeat(ctx, sofa11)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeAlreadyBooked, outcome)

		seat, err := seats.FindSeat(ctx, sofa11)
		require.NoError(t, err)
		assert.True(t, seat.Booked)
	})

	t.Run("reseed keeps booked state", func(t *testing.T) {
		_, err := seats.SeedCatalog(ctx, []domain.SeatID{sofa11})
		require.NoError(t, err)

		seat, err := seats.FindSeat(ctx, sofa11)
		require.NoError(t, err)
		assert.True(t, seat.Booked)
	})

	t.Run("unknown seat is created booked", func(t *testing.T) {
		chair := domain.SeatID{Section: "Chair", Row: 9, Col: 9}
		_, err := seats.FindSeat(ctx, chair)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		outcome, err := seats.ReserveSeat(ctx, chair)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeCreatedAndBooked, outcome)

		all, err := seats.ListSeats(ctx)
		require.NoError(t, err)
		count := 0
		for _, s := range all {
			if s.SeatID == chair {
				count++
				assert.True(t, s.Booked)
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestSeatRepository_ConcurrentReserve(t *testing.T) {
	repo := setupRepository(t)
	seats := repo.Seats()
	ctx := context.Background()

	seeded := domain.SeatID{Section: "Recliner", Row: 2, Col: 3}
	_, err := seats.SeedCatalog(ctx, []domain.SeatID{seeded})
	require.NoError(t, err)
	absent := domain.SeatID{Section: "Recliner", Row: 7, Col: 7}

	for _, id := range []domain.SeatID{seeded, absent} {
		const callers = 16
		outcomes := make(chan domain.Outcome, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, err := seats.ReserveSeat(ctx, id)
				if assert.NoError(t, err) {
					outcomes <- outcome
				}
			}()
		}
		wg.Wait()
		close(outcomes)

		winners := 0
		for o := range outcomes {
			if o.Reserved() {
				winners++
			} else {
				assert.Equal(t, domain.OutcomeAlreadyBooked, o)
			}
		}
		assert.Equal(t, 1, winners, "seat %s", id)
	}
}

func TestUserRepository(t *testing.T) {
	repo := setupRepository(t)
	users := repo.Users()
	ctx := context.Background()

	u := domain.NewUser("greeshma", "G@Example.com", "hash")
	require.NoError(t, users.CreateUser(ctx, u))

	dup := domain.NewUser("other", "g@example.com", "hash2")
	assert.True(t, errors.Is(users.CreateUser(ctx, dup), domain.ErrUserExists))

	got, err := users.GetUserByEmail(ctx, "g@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "greeshma", got.Username)

	_, err = users.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
