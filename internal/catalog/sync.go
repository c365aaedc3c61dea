package catalog

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/pkg/model"
)

// Candidate is one model record derived from the external repository by a
// crawler. Candidates are validated at this boundary so malformed
// directory-derived data never reaches the catalog tables.
type Candidate struct {
	Name         string
	Type         model.ModelType
	Version      string
	Variant      string
	LanguageCode string
	LanguageName string
}

// Validate checks that the candidate describes a usable catalog row.
func (c Candidate) Validate() error {
	if c.Name == "" {
		return errors.New("candidate has no name")
	}
	if c.Version == "" {
		return errors.New("candidate has no version")
	}
	if c.LanguageCode == "" || c.LanguageName == "" {
		return errors.Errorf("candidate %q has no language", c.Name)
	}
	return errors.Wrapf(c.Type.Validate(), "candidate %q", c.Name)
}

// Source produces candidate rows from an external model repository.
type Source interface {
	Fetch(ctx context.Context) ([]Candidate, error)
}

// Rebuilder atomically replaces the catalog contents.
type Rebuilder interface {
	Rebuild(ctx context.Context, candidates []Candidate) (Result, error)
}

// Result reports what a catalog sync changed. Generation increases by one on
// every successful rebuild and can be used for staleness checks.
type Result struct {
	ModelsUpdated    int   `json:"models_updated"`
	LanguagesUpdated int   `json:"languages_updated"`
	Generation       int64 `json:"generation"`
}

// Syncer refreshes the catalog from a source.
type Syncer struct {
	source Source
	store  Rebuilder
}

// NewSyncer creates a catalog syncer.
func NewSyncer(source Source, store Rebuilder) *Syncer {
	return &Syncer{source: source, store: store}
}

// Sync fetches candidates from the source, drops malformed rows, and
// replaces the catalog in a single transaction.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	candidates, err := s.source.Fetch(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "fetching models from repository")
	}

	valid := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			log.WithError(err).Warn("skipping malformed model candidate")
			continue
		}
		valid = append(valid, c)
	}

	result, err := s.store.Rebuild(ctx, valid)
	if err != nil {
		return Result{}, errors.Wrap(err, "rebuilding catalog")
	}
	log.WithField("models", result.ModelsUpdated).
		WithField("languages", result.LanguagesUpdated).
		WithField("generation", result.Generation).
		Info("catalog sync complete")
	return result, nil
}
