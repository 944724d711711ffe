// Package db stores the durable pick counter in sqlite and mounts the
// database admin routes.
package db

import (
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// PickedCounter is the counter incremented once per published pose.
const PickedCounter = "picked"

var ErrUnknownCounter = errors.New("unknown counter")

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the sqlite database at path and migrates it to the latest
// schema.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps read-modify-write on the counter serialised and
	// lets ":memory:" databases survive across calls.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Counter returns the current value of the named counter.
func (db *DB) Counter(name string) (int64, error) {
	var v int64
	err := db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounter, name)
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return v, nil
}

// IncrementCounter adds one to the named counter and returns the new value.
// It is a read-modify-write with no cross-process locking: there must be a
// single writer, the pipeline worker.
func (db *DB) IncrementCounter(name string) (int64, error) {
	v, err := db.Counter(name)
	if err != nil {
		return 0, err
	}
	v++
	if _, err := db.Exec(`UPDATE counters SET value = ? WHERE name = ?`, v, name); err != nil {
		return 0, fmt.Errorf("write counter %s: %w", name, err)
	}
	return v, nil
}

// PickCount returns the picked counter.
func (db *DB) PickCount() (int64, error) { return db.Counter(PickedCounter) }

// IncrementPickCount adds one to the picked counter.
func (db *DB) IncrementPickCount() (int64, error) { return db.IncrementCounter(PickedCounter) }

// AttachAdminRoutes mounts tailsql and a database backup download under
// /debug/ on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Pick counter DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("picked-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		log.Printf("Failed to write backup: %v", err)
	}
}
