package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/cartonguide/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "picked.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestNewDB_StartsAtZero(t *testing.T) {
	db, _ := newTestDB(t)
	n, err := db.PickCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestIncrementPickCount(t *testing.T) {
	db, _ := newTestDB(t)
	for i := int64(1); i <= 3; i++ {
		n, err := db.IncrementPickCount()
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	n, err := db.PickCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPickCount_SurvivesReopen(t *testing.T) {
	db, path := newTestDB(t)
	_, err := db.IncrementPickCount()
	require.NoError(t, err)
	_, err = db.IncrementPickCount()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := NewDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.PickCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "migration re-run must not reset the counter")
}

func TestCounter_Unknown(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.Counter("dropped")
	assert.ErrorIs(t, err, ErrUnknownCounter)
	_, err = db.IncrementCounter("dropped")
	assert.ErrorIs(t, err, ErrUnknownCounter)
}

func TestAttachAdminRoutes(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.IncrementPickCount()
	require.NoError(t, err)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body[:16]), "SQLite format 3")
}
