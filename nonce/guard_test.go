package nonce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	const want = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa-0xabcdef"
	tests := []struct {
		name  string
		from  string
		nonce string
	}{
		{name: "mixed case", from: "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa", nonce: "0xABCDEF"},
		{name: "nonce without prefix", from: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", nonce: "abcdef"},
		{name: "upper-case prefix", from: "0XAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", nonce: "0XABCDEF"},
		{name: "address without prefix", from: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", nonce: "0xabcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, want, Key(tt.from, tt.nonce))
		})
	}
}

func runGuardContract(t *testing.T, guard Guard) {
	ctx := context.Background()
	key := Key("0xPayer", "0xNonce")

	used, err := guard.IsUsed(ctx, key)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, guard.MarkUsed(ctx, key))
	used, err = guard.IsUsed(ctx, key)
	require.NoError(t, err)
	assert.True(t, used)

	// marking twice is a no-op
	require.NoError(t, guard.MarkUsed(ctx, key))
	used, err = guard.IsUsed(ctx, key)
	require.NoError(t, err)
	assert.True(t, used)

	inserted, err := guard.MarkIfAbsent(ctx, key)
	require.NoError(t, err)
	assert.False(t, inserted)

	reserved, err := guard.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, reserved, "used key must not be reserved")
	require.NoError(t, guard.Release(ctx, key))
	used, err = guard.IsUsed(ctx, key)
	require.NoError(t, err)
	assert.True(t, used, "release must not drop a used key")

	other := Key("0xPayer", "0xOther")
	inserted, err = guard.MarkIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func runReservationContract(t *testing.T, guard Guard) {
	ctx := context.Background()
	key := Key("0xPayer", "0xPending")

	reserved, err := guard.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, reserved)

	// a reservation is not a use, but blocks a second reservation
	used, err := guard.IsUsed(ctx, key)
	require.NoError(t, err)
	assert.False(t, used)
	reserved, err = guard.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, reserved)
	inserted, err := guard.MarkIfAbsent(ctx, key)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, guard.Release(ctx, key))
	reserved, err = guard.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, reserved)

	require.NoError(t, guard.MarkUsed(ctx, key))
	used, err = guard.IsUsed(ctx, key)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestMemoryGuard(t *testing.T) {
	guard := NewMemoryGuard()
	runGuardContract(t, guard)
	runReservationContract(t, guard)
	assert.Equal(t, 3, guard.Len())
}

func TestMemoryGuard_ConcurrentReserve(t *testing.T) {
	guard := NewMemoryGuard()
	ctx := context.Background()
	key := Key("0xpayer", "0xnonce")

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := guard.Reserve(ctx, key)
			if err == nil && reserved {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
	assert.Equal(t, 0, guard.Len())
}

func TestMemoryGuard_ConcurrentMarkIfAbsent(t *testing.T) {
	guard := NewMemoryGuard()
	ctx := context.Background()
	key := Key("0xpayer", "0xnonce")

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := guard.MarkIfAbsent(ctx, key)
			if err == nil && inserted {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

// fakeDB emulates the statements PostgresGuard issues against a table with
// a primary key on nonce_key and a status column.
type fakeDB struct {
	mu      sync.Mutex
	keys    map[string]string
	execErr error
	sql     []string
	args    [][]any
}

func newFakeDB() *fakeDB {
	return &fakeDB{keys: make(map[string]string)}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	switch {
	case strings.HasPrefix(sql, "CREATE TABLE"), strings.HasPrefix(sql, "ALTER TABLE"):
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case strings.HasPrefix(sql, "DELETE"):
		key := args[0].(string)
		if f.keys[key] != "pending" {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(f.keys, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	case strings.HasPrefix(sql, "INSERT"):
		key := args[0].(string)
		status, exists := f.keys[key]
		switch {
		case strings.Contains(sql, "VALUES ($1, 'pending')"):
			if exists {
				return pgconn.NewCommandTag("INSERT 0 0"), nil
			}
			f.keys[key] = "pending"
		case strings.Contains(sql, "DO UPDATE SET status = 'used'"):
			if exists && status == "used" {
				return pgconn.NewCommandTag("INSERT 0 0"), nil
			}
			f.keys[key] = "used"
		default:
			if exists {
				return pgconn.NewCommandTag("INSERT 0 0"), nil
			}
			f.keys[key] = "used"
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sql = append(f.sql, sql)
	return fakeRow{exists: f.keys[args[0].(string)] == "used"}
}

type fakeRow struct {
	exists bool
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = r.exists
	return nil
}

func TestPostgresGuard(t *testing.T) {
	db := newFakeDB()
	guard := NewPostgresGuard(db, "")
	require.NoError(t, guard.EnsureSchema(context.Background()))

	runGuardContract(t, guard)
	runReservationContract(t, guard)

	assert.Contains(t, db.sql[0], `"x402_used_nonces"`)
	assert.Contains(t, db.sql[1], "ADD COLUMN IF NOT EXISTS status")
	assert.Len(t, db.keys, 3)
}

func TestPostgresGuard_ReservationTTL(t *testing.T) {
	db := newFakeDB()
	guard := NewPostgresGuard(db, "").WithReservationTTL(90 * time.Second)

	reserved, err := guard.Reserve(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Contains(t, db.sql[0], "make_interval(secs => $2)")
	assert.Equal(t, []any{"k", float64(90)}, db.args[0])
}

func TestPostgresGuard_CustomTableIsQuoted(t *testing.T) {
	db := newFakeDB()
	guard := NewPostgresGuard(db, `nonces"; DROP TABLE users; --`)

	_, err := guard.MarkIfAbsent(context.Background(), "k")
	require.NoError(t, err)
	assert.Contains(t, db.sql[0], `"nonces""; DROP TABLE users; --"`)
}

func TestPostgresGuard_ExecError(t *testing.T) {
	db := newFakeDB()
	db.execErr = errors.New("connection refused")
	guard := NewPostgresGuard(db, "")

	inserted, err := guard.MarkIfAbsent(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, inserted)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Error(t, guard.MarkUsed(context.Background(), "k"))
	assert.Error(t, guard.Release(context.Background(), "k"))
	assert.Error(t, guard.EnsureSchema(context.Background()))

	reserved, err := guard.Reserve(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, reserved)
}
