package catalog

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"gopkg.in/guregu/null.v3"

	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

// PostgresStore implements the catalog queries on the bun singleton.
type PostgresStore struct{}

// NewPostgresStore returns the Postgres-backed catalog store.
func NewPostgresStore() *PostgresStore { return &PostgresStore{} }

// FindModel returns the catalog row with the exact (name, version, type) key.
// Duplicate rows are possible since sync does not enforce uniqueness; the
// oldest row wins so repeated lookups stay deterministic.
func (*PostgresStore) FindModel(
	ctx context.Context, name, version string, t model.ModelType,
) (*model.SpeechModel, error) {
	var m model.SpeechModel
	err := db.Bun().NewSelect().Model(&m).
		Where("name = ?", name).
		Where("version = ?", version).
		Where("model_type = ?", t).
		Order("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &m, nil
}

// ModelByID returns the catalog row with the given ID.
func (*PostgresStore) ModelByID(
	ctx context.Context, id model.SpeechModelID,
) (*model.SpeechModel, error) {
	var m model.SpeechModel
	err := db.Bun().NewSelect().Model(&m).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &m, nil
}

// ListModels returns catalog models, optionally filtered to one language code.
func (*PostgresStore) ListModels(
	ctx context.Context, languageCode string, skip, limit int,
) ([]model.SpeechModel, *db.Pagination, error) {
	models := []model.SpeechModel{}
	q := db.Bun().NewSelect().Model(&models).
		Relation("Language").
		Order("speech_model.id ASC")
	if languageCode != "" {
		q = q.Where("language.code = ?", languageCode)
	}
	q, pagination, err := db.Paginate(ctx, q, skip, limit)
	if err != nil {
		return nil, nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, nil, err
	}
	return models, pagination, nil
}

// ListModelsByType returns all catalog models of one type, optionally
// filtered to one language code.
func (*PostgresStore) ListModelsByType(
	ctx context.Context, t model.ModelType, languageCode string,
) ([]model.SpeechModel, error) {
	models := []model.SpeechModel{}
	q := db.Bun().NewSelect().Model(&models).
		Relation("Language").
		Where("model_type = ?", t).
		Order("speech_model.id ASC")
	if languageCode != "" {
		q = q.Where("language.code = ?", languageCode)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return models, nil
}

// ListLanguages returns the known languages.
func (*PostgresStore) ListLanguages(
	ctx context.Context, skip, limit int,
) ([]model.Language, *db.Pagination, error) {
	languages := []model.Language{}
	q := db.Bun().NewSelect().Model(&languages).Order("id ASC")
	q, pagination, err := db.Paginate(ctx, q, skip, limit)
	if err != nil {
		return nil, nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, nil, err
	}
	return languages, pagination, nil
}

// Rebuild atomically replaces the catalog: all model rows are deleted and
// recreated from the candidates, missing languages are created, languages
// left without models are removed, and the catalog generation is bumped.
// Running inside one transaction means concurrent resolvers never observe an
// empty or half-built catalog.
func (*PostgresStore) Rebuild(
	ctx context.Context, candidates []Candidate,
) (Result, error) {
	var result Result
	err := db.Bun().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*model.SpeechModel)(nil)).
			Where("TRUE").Exec(ctx); err != nil {
			return errors.Wrap(err, "clearing speech models")
		}

		languageIDs, created, err := ensureLanguages(ctx, tx, candidates)
		if err != nil {
			return err
		}
		result.LanguagesUpdated = created

		if len(candidates) > 0 {
			rows := make([]model.SpeechModel, 0, len(candidates))
			for _, c := range candidates {
				rows = append(rows, model.SpeechModel{
					Name:       c.Name,
					Type:       c.Type,
					Version:    c.Version,
					Variant:    nullableString(c.Variant),
					LanguageID: languageIDs[c.LanguageCode],
				})
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return errors.Wrap(err, "inserting speech models")
			}
			result.ModelsUpdated = len(rows)
		}

		if _, err := tx.NewDelete().Model((*model.Language)(nil)).
			Where("id NOT IN (SELECT DISTINCT language_id FROM speech_models)").
			Exec(ctx); err != nil {
			return errors.Wrap(err, "deleting unused languages")
		}

		err = tx.NewRaw(
			"UPDATE catalog_state SET generation = generation + 1, synced_at = now() RETURNING generation",
		).Scan(ctx, &result.Generation)
		return errors.Wrap(err, "bumping catalog generation")
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ensureLanguages creates any languages the candidates reference that do not
// exist yet and returns the full code to ID mapping.
func ensureLanguages(
	ctx context.Context, tx bun.Tx, candidates []Candidate,
) (map[string]model.LanguageID, int, error) {
	existing := []model.Language{}
	if err := tx.NewSelect().Model(&existing).Scan(ctx); err != nil {
		return nil, 0, errors.Wrap(err, "listing languages")
	}
	ids := make(map[string]model.LanguageID, len(existing))
	for _, l := range existing {
		ids[l.Code] = l.ID
	}

	missing := []model.Language{}
	seen := map[string]bool{}
	for _, c := range candidates {
		if _, ok := ids[c.LanguageCode]; ok || seen[c.LanguageCode] {
			continue
		}
		seen[c.LanguageCode] = true
		missing = append(missing, model.Language{Code: c.LanguageCode, Name: c.LanguageName})
	}
	if len(missing) > 0 {
		if _, err := tx.NewInsert().Model(&missing).Returning("*").Exec(ctx); err != nil {
			return nil, 0, errors.Wrap(err, "inserting languages")
		}
		for _, l := range missing {
			ids[l.Code] = l.ID
		}
	}
	return ids, len(missing), nil
}

func nullableString(s string) null.String {
	if s == "" {
		return null.NewString("", false)
	}
	return null.StringFrom(s)
}
