package model

import (
	"fmt"

	"github.com/uptrace/bun"
	"gopkg.in/guregu/null.v3"
)

// ModelType enumerates the roles a speech model can fill in an alignment job.
type ModelType string

const (
	// ModelTypeAcoustic is an acoustic model.
	ModelTypeAcoustic ModelType = "acoustic"
	// ModelTypeDictionary is a pronunciation dictionary.
	ModelTypeDictionary ModelType = "dictionary"
	// ModelTypeG2P is a grapheme-to-phoneme model.
	ModelTypeG2P ModelType = "g2p"
)

// Validate checks that the model type is one of the known roles.
func (t ModelType) Validate() error {
	switch t {
	case ModelTypeAcoustic, ModelTypeDictionary, ModelTypeG2P:
		return nil
	default:
		return fmt.Errorf("invalid model type: %q", string(t))
	}
}

// LanguageID is the type for language IDs.
type LanguageID int

// SpeechModelID is the type for speech model IDs.
type SpeechModelID int

// Language corresponds to a row in the "languages" DB table. The code is the
// upstream repository's directory name (e.g. "russian") and is case-sensitive.
type Language struct {
	bun.BaseModel `bun:"table:languages"`

	ID   LanguageID `bun:"id,pk,autoincrement" json:"id"`
	Code string     `bun:"code" json:"code"`
	Name string     `bun:"name" json:"name"`
}

// SpeechModel corresponds to a row in the "speech_models" DB table. Rows are
// immutable once created; catalog sync replaces the whole table rather than
// updating in place.
type SpeechModel struct {
	bun.BaseModel `bun:"table:speech_models"`

	ID          SpeechModelID `bun:"id,pk,autoincrement" json:"id"`
	Name        string        `bun:"name" json:"name"`
	Type        ModelType     `bun:"model_type" json:"model_type"`
	Version     string        `bun:"version" json:"version"`
	Variant     null.String   `bun:"variant" json:"variant"`
	LanguageID  LanguageID    `bun:"language_id" json:"language_id"`
	Description null.String   `bun:"description" json:"description"`

	Language *Language `bun:"rel:belongs-to,join:language_id=id" json:"language,omitempty"`
}

// ModelRef is a caller-supplied lookup key for a speech model. The intended
// role is supplied separately by the caller.
type ModelRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Empty reports whether the reference is missing its name or version. A
// partially specified reference for an optional role means "no model
// requested", not a malformed lookup.
func (r ModelRef) Empty() bool {
	return r.Name == "" || r.Version == ""
}
