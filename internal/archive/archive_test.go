package archive

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biosecure/internal/casefile"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cf, err := casefile.New("gs://b/insect1.png")
	require.NoError(t, err)
	cf = cf.WithThreatProfile(casefile.ThreatProfile{StatusNZ: "Benign", ThreatLevel: casefile.ThreatLow})
	require.NoError(t, s.Save(ctx, cf))

	got, err := s.Get(ctx, cf.CaseID)
	require.NoError(t, err)
	assert.Equal(t, cf.CaseID, got.CaseID)
	assert.Equal(t, casefile.StatusThreatAssessed, got.Status)

	got.ThreatProfile.Hosts = append(got.ThreatProfile.Hosts, "mutated")
	again, err := s.Get(ctx, cf.CaseID)
	require.NoError(t, err)
	assert.Empty(t, again.ThreatProfile.Hosts)
}

func TestMemoryStoreErrors(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Save(context.Background(), casefile.CaseFile{}))

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// flakyConnector backs a *sql.DB whose first schema statement fails.
type flakyConnector struct {
	schemaCalls atomic.Int32
	saves       atomic.Int32
}

func (c *flakyConnector) Connect(context.Context) (driver.Conn, error) { return flakyConn{c}, nil }
func (c *flakyConnector) Driver() driver.Driver                        { return nil }

type flakyConn struct{ c *flakyConnector }

func (flakyConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare unsupported") }
func (flakyConn) Close() error                        { return nil }
func (flakyConn) Begin() (driver.Tx, error)           { return nil, errors.New("tx unsupported") }

func (f flakyConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if strings.Contains(query, "CREATE TABLE") {
		if f.c.schemaCalls.Add(1) == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return driver.RowsAffected(0), nil
	}
	f.c.saves.Add(1)
	return driver.RowsAffected(1), nil
}

func TestPostgresStoreRetriesFailedSchema(t *testing.T) {
	conn := &flakyConnector{}
	db := sql.OpenDB(conn)
	t.Cleanup(func() { db.Close() })
	s := NewPostgresStore(db)
	ctx := context.Background()

	cf, err := casefile.New("gs://b/insect1.png")
	require.NoError(t, err)

	err = s.Save(ctx, cf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")

	require.NoError(t, s.Save(ctx, cf))
	require.NoError(t, s.Save(ctx, cf))
	assert.Equal(t, int32(2), conn.schemaCalls.Load())
	assert.Equal(t, int32(2), conn.saves.Load())
}
