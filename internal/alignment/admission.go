// Package alignment implements job admission and the alignment job API:
// uploads are validated, model references resolved against the catalog,
// quota charged, files persisted to object storage, and a pending job row
// handed to the queue.
package alignment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/alignlab/alignd/internal/api"
	"github.com/alignlab/alignd/internal/catalog"
	"github.com/alignlab/alignd/pkg/model"
)

var allowedAudioExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
}

// Validator resolves model references and checks their language coherence.
type Validator interface {
	ValidateSameLanguage(ctx context.Context,
		acoustic, dictionary model.ModelRef, g2p *model.ModelRef) (catalog.Validation, error)
}

// FileStore persists uploaded files and alignment results.
type FileStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Quota checks and records per-user storage consumption.
type Quota interface {
	CheckStorageQuota(ctx context.Context, id model.UserID, required int64) (bool, error)
	AddStorageUsage(ctx context.Context, id model.UserID, delta int64) error
}

// Enqueuer hands admitted jobs to the worker queue.
type Enqueuer interface {
	PublishJob(id model.JobID) error
}

// Upload is one file received from the client.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// JobRequest is the admission input for one alignment job.
type JobRequest struct {
	Audio      Upload
	Text       Upload
	Acoustic   model.ModelRef
	Dictionary model.ModelRef
	G2P        *model.ModelRef
}

// Service admits alignment jobs and serves the job API.
type Service struct {
	store    Store
	models   Validator
	files    FileStore
	quota    Quota
	enqueuer Enqueuer
}

// NewService wires the admission service.
func NewService(
	store Store, models Validator, files FileStore, quota Quota, enqueuer Enqueuer,
) *Service {
	return &Service{store: store, models: models, files: files, quota: quota, enqueuer: enqueuer}
}

// CreateJob validates the request, charges quota, stores the uploaded files
// and inserts a pending job. Validation failures leave no trace: nothing is
// written to storage or the database before every check has passed.
func (s *Service) CreateJob(
	ctx context.Context, owner model.User, req JobRequest,
) (*model.AlignmentJob, error) {
	audioExt := strings.ToLower(filepath.Ext(req.Audio.Filename))
	if !allowedAudioExtensions[audioExt] {
		return nil, api.AsValidationError("Invalid audio file. Only MP3 and WAV files are allowed.")
	}
	textExt := strings.ToLower(filepath.Ext(req.Text.Filename))
	if textExt != ".txt" {
		return nil, api.AsValidationError("Invalid text file. Only TXT files are allowed.")
	}

	// A G2P reference missing its name or version means no G2P model was
	// requested.
	g2p := req.G2P
	if g2p != nil && g2p.Empty() {
		g2p = nil
	}

	validation, err := s.models.ValidateSameLanguage(ctx, req.Acoustic, req.Dictionary, g2p)
	if err != nil {
		return nil, err
	}
	if !validation.OK {
		return nil, api.AsValidationError(validation.Message)
	}

	required := req.Audio.Size + req.Text.Size
	ok, err := s.quota.CheckStorageQuota(ctx, owner.ID, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, api.AsErrForbidden("Storage quota exceeded.")
	}

	audioKey := objectKey(owner.ID, req.Audio.Filename)
	textKey := objectKey(owner.ID, req.Text.Filename)
	if err := s.files.Upload(ctx, audioKey, req.Audio.Body, req.Audio.ContentType); err != nil {
		return nil, err
	}
	if err := s.files.Upload(ctx, textKey, req.Text.Body, req.Text.ContentType); err != nil {
		if derr := s.files.Delete(ctx, audioKey); derr != nil {
			log.WithError(derr).WithField("key", audioKey).
				Warn("failed to remove orphaned audio upload")
		}
		return nil, err
	}

	job := &model.AlignmentJob{
		OwnerID:                owner.ID,
		AudioPath:              audioKey,
		TextPath:               textKey,
		OriginalAudioFilename:  req.Audio.Filename,
		OriginalTextFilename:   req.Text.Filename,
		AcousticModelName:      req.Acoustic.Name,
		AcousticModelVersion:   req.Acoustic.Version,
		DictionaryModelName:    req.Dictionary.Name,
		DictionaryModelVersion: req.Dictionary.Version,
		AcousticModelID:        null.IntFrom(int64(validation.Acoustic.ID)),
		DictionaryModelID:      null.IntFrom(int64(validation.Dictionary.ID)),
		Status:                 model.JobPending,
	}
	if g2p != nil {
		job.G2PModelName = null.StringFrom(g2p.Name)
		job.G2PModelVersion = null.StringFrom(g2p.Version)
		if validation.G2P != nil {
			job.G2PModelID = null.IntFrom(int64(validation.G2P.ID))
		}
	}
	if err := s.store.AddJob(ctx, job); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		kind model.FileKind
		key  string
		up   Upload
	}{
		{model.FileKindAudio, audioKey, req.Audio},
		{model.FileKindText, textKey, req.Text},
	} {
		meta := &model.FileMetadata{
			UserID:           owner.ID,
			JobID:            null.IntFrom(int64(job.ID)),
			Kind:             f.kind,
			OriginalFilename: f.up.Filename,
			StoragePath:      f.key,
			Size:             f.up.Size,
			MimeType:         null.NewString(f.up.ContentType, f.up.ContentType != ""),
		}
		if err := s.store.AddFileMetadata(ctx, meta); err != nil {
			log.WithError(err).WithField("job_id", job.ID).
				Warn("failed to record file metadata")
		}
	}
	if err := s.quota.AddStorageUsage(ctx, owner.ID, required); err != nil {
		log.WithError(err).WithField("user_id", owner.ID).
			Warn("failed to record storage usage")
	}
	return job, nil
}

// objectKey builds a collision-free storage key preserving the file extension.
func objectKey(owner model.UserID, filename string) string {
	return fmt.Sprintf("users/%d/jobs/%s%s",
		owner, uuid.New().String(), strings.ToLower(filepath.Ext(filename)))
}

// jobVisibleTo reports whether the user may see and manage the job. Admins
// see everything; other users only their own jobs, which read as not found.
func jobVisibleTo(job *model.AlignmentJob, user model.User) error {
	if user.CanAdministrate() || job.OwnerID == user.ID {
		return nil
	}
	return errors.Wrapf(api.ErrNotFound, "alignment job %d not found", job.ID)
}
