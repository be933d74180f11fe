// Package store keeps a log of measurement cycle results in SQLite.
// Only the per-channel integrals are stored, never the sample arrays.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/itohio/gomso/pkg/meter"
	"github.com/itohio/gomso/pkg/output"
	"github.com/itohio/gomso/pkg/scope"
)

var _ output.Output = (*SqliteStore)(nil)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Cycle is one stored measurement cycle.
type Cycle struct {
	ID        int64
	Timestamp time.Time
	Duration  time.Duration
	Averages  int
	Counter   int
	Integrals [scope.NumChannels]*float64 // nil for channels that were inactive
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by dbPath. The database is opened
// and its schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	if s.dbErr == nil && s.db == nil {
		return nil, ErrClosed
	}
	return s.db, s.dbErr
}

// Record appends res to the log.
func (s *SqliteStore) Record(ctx context.Context, res meter.Result) (id int64, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertCycleSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var integrals [scope.NumChannels]sql.NullFloat64
	for i, v := range res.Integrals {
		integrals[i] = sql.NullFloat64{Float64: v, Valid: res.Active[i]}
	}

	result, err := stmt.ExecContext(ctx,
		res.Timestamp.UnixNano(),
		res.Duration.Nanoseconds(),
		res.Averages,
		res.Counter,
		integrals[0], integrals[1], integrals[2], integrals[3],
	)
	if err != nil {
		err = fmt.Errorf("inserting cycle: %w", err)
		return
	}

	id, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting cycle ID: %w", err)
	}
	return
}

// Recent returns up to limit cycles, newest first.
func (s *SqliteStore) Recent(ctx context.Context, limit int) (cycles []Cycle, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecentCyclesSQL, limit)
	if err != nil {
		err = fmt.Errorf("querying cycles: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			c         Cycle
			ts, dur   int64
			integrals [scope.NumChannels]sql.NullFloat64
		)
		if err = rows.Scan(&c.ID, &ts, &dur, &c.Averages, &c.Counter,
			&integrals[0], &integrals[1], &integrals[2], &integrals[3]); err != nil {
			err = fmt.Errorf("scanning cycle: %w", err)
			return
		}
		c.Timestamp = time.Unix(0, ts)
		c.Duration = time.Duration(dur)
		for i, v := range integrals {
			if v.Valid {
				f := v.Float64
				c.Integrals[i] = &f
			}
		}
		cycles = append(cycles, c)
	}
	err = rows.Err()
	return
}

// Publish records res, so the store can be used as a result output.
func (s *SqliteStore) Publish(res meter.Result) error {
	_, err := s.Record(context.Background(), res)
	return err
}

// Close closes the database.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
			s.db = nil
		}
	})

	return s.closeErr
}

func closeWithError(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
