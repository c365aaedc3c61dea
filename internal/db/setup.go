package db

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/internal/config"
)

const maxOpenConns = 48

const cnxTpl = "postgres://%s:%s@%s:%s/%s?application_name=alignd-master&sslmode=%s"

// Connect connects to the database, but doesn't run migrations & inits.
func Connect(opts *config.DBConfig) (*PgDB, error) {
	dbURL := fmt.Sprintf(cnxTpl, opts.User, opts.Password, opts.Host, opts.Port, opts.Name, opts.SSLMode)
	log.Infof("connecting to database %s:%s", opts.Host, opts.Port)
	db, err := ConnectPostgres(dbURL)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to database: %s:%s", opts.Host, opts.Port)
	}

	db.sql.SetMaxOpenConns(maxOpenConns)

	return db, nil
}

// Setup connects to the database and runs any necessary migrations.
func Setup(opts *config.DBConfig) (*PgDB, error) {
	db, err := Connect(opts)
	if err != nil {
		return db, err
	}

	if err = db.Migrate(opts.Migrations, []string{"up"}); err != nil {
		return nil, errors.Wrap(err, "running migrations")
	}
	return db, nil
}
