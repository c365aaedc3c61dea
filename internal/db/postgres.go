package db

import (
	"sync"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // Import Postgres driver.
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// PgDB represents a Postgres database connection.  The type definition is needed to define methods.
type PgDB struct {
	sql *sqlx.DB
	url string
}

const (
	// uniqueViolation is the error code that Postgres uses to indicate that an attempted
	// insert/update violates a uniqueness constraint.  Obtained from:
	// https://www.postgresql.org/docs/10/errcodes-appendix.html
	uniqueViolation = "23505"

	maxConnectTries = 15
)

var (
	theOneBun      *bun.DB
	theOneBunMutex sync.Mutex
)

func initTheOneBun(db *PgDB) {
	theOneBunMutex.Lock()
	defer theOneBunMutex.Unlock()
	if theOneBun != nil {
		log.Warn("detected re-initialization of bun singleton; this is probably a test")
	}
	theOneBun = bun.NewDB(db.sql.DB, pgdialect.New())

	// This will print every query that runs when the log level is trace.
	theOneBun.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(log.GetLevel() == log.TraceLevel),
		bundebug.WithEnabled(log.GetLevel() == log.TraceLevel),
	))
}

// Bun returns the singleton bun connection. It panics if bun has not been
// initialized through ConnectPostgres.
func Bun() *bun.DB {
	theOneBunMutex.Lock()
	defer theOneBunMutex.Unlock()
	if theOneBun == nil {
		panic("bun is not initialized; did you call ConnectPostgres?")
	}
	return theOneBun
}

// ConnectPostgres connects to a Postgres database.
func ConnectPostgres(url string) (*PgDB, error) {
	numTries := 0
	for {
		sql, err := sqlx.Connect("pgx", url)
		if err == nil {
			db := &PgDB{sql: sql, url: url}
			initTheOneBun(db)
			return db, nil
		}
		numTries++
		if numTries >= maxConnectTries {
			return nil, errors.Wrapf(err, "could not connect to database after %v tries", numTries)
		}
		toWait := 4 * time.Second
		time.Sleep(toWait)
		log.WithError(err).Warnf("failed to connect to postgres, trying again in %s", toWait)
	}
}

// Close closes the underlying connection.
func (db *PgDB) Close() error {
	return db.sql.Close()
}
