package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/guregu/null.v3"

	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

type fakeCatalog struct {
	models map[model.SpeechModelID]*model.SpeechModel
}

func (f *fakeCatalog) ModelByID(
	_ context.Context, id model.SpeechModelID,
) (*model.SpeechModel, error) {
	m, ok := f.models[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return m, nil
}

func TestModelNamePrefersSnapshot(t *testing.T) {
	catalog := &fakeCatalog{models: map[model.SpeechModelID]*model.SpeechModel{
		11: {ID: 11, Name: "english_mfa_acoustic", Type: model.ModelTypeAcoustic},
	}}
	e := NewMFAEngine(nil, nil, catalog, "")

	// The canonical catalog name wins over the user's shorthand.
	name := e.modelName(context.Background(), null.IntFrom(11), "english_mfa")
	assert.Equal(t, "english_mfa_acoustic", name)
}

func TestModelNameFallsBackToSubmittedName(t *testing.T) {
	e := NewMFAEngine(nil, nil, &fakeCatalog{}, "")

	// No snapshot link on the job.
	name := e.modelName(context.Background(), null.Int{}, "english_mfa")
	assert.Equal(t, "english_mfa", name)

	// Snapshot link present but the row is gone after a catalog rebuild.
	name = e.modelName(context.Background(), null.IntFrom(42), "english_mfa")
	assert.Equal(t, "english_mfa", name)
}
