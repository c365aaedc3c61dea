package db

import (
	"fmt"
	"regexp"

	"github.com/go-pg/migrations/v8"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Migrate runs the migrations from the specified directory URL.
func (db *PgDB) Migrate(migrationURL string, actions []string) error {
	re := regexp.MustCompile(`file://(.+)`)
	match := re.FindStringSubmatch(migrationURL)
	if len(match) != 2 {
		return fmt.Errorf("failed to parse migrationsURL: %s", migrationURL)
	}

	// go-pg/migrations uses the go-pg/pg connection API, which is not compatible
	// with pgx, so we use a one-off go-pg/pg connection.
	pgOpts, err := pg.ParseURL(db.url)
	if err != nil {
		return err
	}

	pgConn := pg.Connect(pgOpts)
	defer func() {
		if errd := pgConn.Close(); errd != nil {
			log.Errorf("error closing pg connection: %s", errd)
		}
	}()

	log.Infof("running DB migrations from %s; this might take a while...", migrationURL)

	collection := migrations.NewCollection()
	collection.DisableSQLAutodiscover(true)
	if err = collection.DiscoverSQLMigrations(match[1]); err != nil {
		return err
	}
	if len(collection.Migrations()) == 0 {
		return errors.New("failed to discover any migrations")
	}

	if _, _, err = collection.Run(pgConn, "init"); err != nil {
		return errors.Wrap(err, "error initializing migration metadata")
	}

	oldVersion, newVersion, err := collection.Run(pgConn, actions...)
	if err != nil {
		return errors.Wrap(err, "error applying migrations")
	}

	if oldVersion == newVersion {
		log.Infof("no migrations to apply; version: %d", newVersion)
	} else {
		log.Infof("migrated from %d to %d", oldVersion, newVersion)
	}

	return nil
}
