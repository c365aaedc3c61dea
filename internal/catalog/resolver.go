// Package catalog holds the speech model catalog: the languages and model
// records ingested from the upstream repository, the resolver that maps
// user-supplied model references onto catalog rows, and the sync service
// that rebuilds the catalog from a mirror.
package catalog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

// ModelFinder is the single lookup the resolver needs from the catalog store.
type ModelFinder interface {
	FindModel(
		ctx context.Context, name, version string, t model.ModelType,
	) (*model.SpeechModel, error)
}

// Resolver maps caller-supplied (name, version) references plus an intended
// model type onto concrete catalog rows.
type Resolver struct {
	store ModelFinder
}

// NewResolver creates a resolver over the given catalog store.
func NewResolver(store ModelFinder) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up a model reference for the given role. An exact name match
// always wins; otherwise the name is retried with the role suffix appended
// (users commonly refer to the catalog's "russian_mfa_dictionary" as just
// "russian_mfa"). Returns an error wrapping db.ErrNotFound when neither
// lookup matches.
func (r *Resolver) Resolve(
	ctx context.Context, ref model.ModelRef, t model.ModelType,
) (*model.SpeechModel, error) {
	m, err := r.store.FindModel(ctx, ref.Name, ref.Version, t)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	suffixed := ref.Name + "_" + string(t)
	m, err = r.store.FindModel(ctx, suffixed, ref.Version, t)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, errors.Wrapf(db.ErrNotFound,
				"model '%s' version '%s' of type '%s'", ref.Name, ref.Version, t)
		}
		return nil, err
	}
	return m, nil
}

// Validation is the outcome of cross-role model validation. A failed lookup
// or a language mismatch is a normal outcome reported through OK/Message,
// not an error; the error return is reserved for infrastructure failures.
type Validation struct {
	OK         bool
	Message    string
	LanguageID model.LanguageID

	Acoustic   *model.SpeechModel
	Dictionary *model.SpeechModel
	G2P        *model.SpeechModel
}

// ValidateSameLanguage resolves the acoustic, dictionary and (optional) G2P
// references and verifies that every resolved model belongs to the same
// language. A g2p reference that is nil or missing either field means no G2P
// model was requested and is skipped entirely.
func (r *Resolver) ValidateSameLanguage(
	ctx context.Context,
	acoustic, dictionary model.ModelRef,
	g2p *model.ModelRef,
) (Validation, error) {
	var v Validation

	acousticModel, err := r.Resolve(ctx, acoustic, model.ModelTypeAcoustic)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			v.Message = "Acoustic model '" + acoustic.Name + "' not found"
			return v, nil
		}
		return v, err
	}
	v.Acoustic = acousticModel

	dictionaryModel, err := r.Resolve(ctx, dictionary, model.ModelTypeDictionary)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			v.Message = "Dictionary model '" + dictionary.Name + "' not found"
			return v, nil
		}
		return v, err
	}
	v.Dictionary = dictionaryModel

	if acousticModel.LanguageID != dictionaryModel.LanguageID {
		v.Message = "Acoustic and dictionary models must be for the same language"
		return v, nil
	}

	if g2p != nil && !g2p.Empty() {
		g2pModel, err := r.Resolve(ctx, *g2p, model.ModelTypeG2P)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				v.Message = "G2P model '" + g2p.Name + "' not found"
				return v, nil
			}
			return v, err
		}
		if g2pModel.LanguageID != acousticModel.LanguageID {
			v.Message = "All models must be for the same language"
			return v, nil
		}
		v.G2P = g2pModel
	}

	v.OK = true
	v.LanguageID = acousticModel.LanguageID
	return v, nil
}
