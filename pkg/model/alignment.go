package model

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/guregu/null.v3"
)

// JobStatus is the lifecycle state of an alignment job.
type JobStatus string

const (
	// JobPending is the initial state of every submitted job.
	JobPending JobStatus = "pending"
	// JobProcessing means a worker has picked up the job.
	JobProcessing JobStatus = "processing"
	// JobCompleted is a terminal success state.
	JobCompleted JobStatus = "completed"
	// JobFailed is a terminal failure state.
	JobFailed JobStatus = "failed"
)

// Validate checks that the status is a known lifecycle state.
func (s JobStatus) Validate() error {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return nil
	default:
		return fmt.Errorf("invalid job status: %q", string(s))
	}
}

// Terminal reports whether the status is one a job never leaves automatically.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobID is the type for alignment job IDs.
type JobID int

// AlignmentJob corresponds to a row in the "alignment_jobs" DB table.
//
// The job stores both the user's original textual model references (echoed
// back on the API) and the catalog row IDs resolved at admission time, so a
// later catalog rebuild cannot change which models the worker uses.
type AlignmentJob struct {
	bun.BaseModel `bun:"table:alignment_jobs"`

	ID      JobID  `bun:"id,pk,autoincrement" json:"id"`
	OwnerID UserID `bun:"user_id" json:"user_id"`

	AudioPath             string `bun:"audio_path" json:"audio_path"`
	TextPath              string `bun:"text_path" json:"text_path"`
	OriginalAudioFilename string `bun:"original_audio_filename" json:"original_audio_filename"`
	OriginalTextFilename  string `bun:"original_text_filename" json:"original_text_filename"`

	AcousticModelName      string      `bun:"acoustic_model_name" json:"acoustic_model_name"`
	AcousticModelVersion   string      `bun:"acoustic_model_version" json:"acoustic_model_version"`
	DictionaryModelName    string      `bun:"dictionary_model_name" json:"dictionary_model_name"`
	DictionaryModelVersion string      `bun:"dictionary_model_version" json:"dictionary_model_version"`
	G2PModelName           null.String `bun:"g2p_model_name" json:"g2p_model_name"`
	G2PModelVersion        null.String `bun:"g2p_model_version" json:"g2p_model_version"`

	AcousticModelID   null.Int `bun:"acoustic_model_id" json:"-"`
	DictionaryModelID null.Int `bun:"dictionary_model_id" json:"-"`
	G2PModelID        null.Int `bun:"g2p_model_id" json:"-"`

	Status       JobStatus   `bun:"status" json:"status"`
	ResultPath   null.String `bun:"result_path" json:"result_path"`
	ErrorMessage null.String `bun:"error_message" json:"error_message"`
	CreatedAt    time.Time   `bun:"created_at,nullzero" json:"created_at"`
	ModifiedAt   time.Time   `bun:"modified_at,nullzero" json:"modified_at"`
}

// AcousticRef returns the user-supplied acoustic model reference.
func (j AlignmentJob) AcousticRef() ModelRef {
	return ModelRef{Name: j.AcousticModelName, Version: j.AcousticModelVersion}
}

// DictionaryRef returns the user-supplied dictionary model reference.
func (j AlignmentJob) DictionaryRef() ModelRef {
	return ModelRef{Name: j.DictionaryModelName, Version: j.DictionaryModelVersion}
}

// G2PRef returns the user-supplied G2P model reference, or nil when the job
// was submitted without one.
func (j AlignmentJob) G2PRef() *ModelRef {
	if !j.G2PModelName.Valid {
		return nil
	}
	return &ModelRef{
		Name:    j.G2PModelName.ValueOrZero(),
		Version: j.G2PModelVersion.ValueOrZero(),
	}
}

// FileKind classifies rows of the file storage metadata ledger.
type FileKind string

const (
	// FileKindAudio is an uploaded audio file.
	FileKindAudio FileKind = "audio"
	// FileKindText is an uploaded transcript file.
	FileKindText FileKind = "text"
	// FileKindResult is a worker-produced alignment artifact.
	FileKindResult FileKind = "result"
)

// FileMetadata corresponds to a row in the "file_storage_metadata" DB table
// and attributes one stored object to a user (and optionally a job).
type FileMetadata struct {
	bun.BaseModel `bun:"table:file_storage_metadata"`

	ID               int         `bun:"id,pk,autoincrement" json:"id"`
	UserID           UserID      `bun:"user_id" json:"user_id"`
	JobID            null.Int    `bun:"job_id" json:"job_id"`
	Kind             FileKind    `bun:"kind" json:"kind"`
	OriginalFilename string      `bun:"original_filename" json:"original_filename"`
	StoragePath      string      `bun:"storage_path" json:"storage_path"`
	Size             int64       `bun:"size" json:"size"`
	MimeType         null.String `bun:"mime_type" json:"mime_type"`
	CreatedAt        time.Time   `bun:"created_at,nullzero" json:"created_at"`
}
