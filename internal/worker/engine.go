package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/alignlab/alignd/internal/alignment"
	"github.com/alignlab/alignd/pkg/model"
)

// FileStore is the object store surface the engine needs.
type FileStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Download(ctx context.Context, key string, w io.WriterAt) error
}

// ModelCatalog loads the catalog rows that admission snapshotted on the job.
type ModelCatalog interface {
	ModelByID(ctx context.Context, id model.SpeechModelID) (*model.SpeechModel, error)
}

// MFAEngine shells out to the Montreal Forced Aligner CLI. Each job gets a
// scratch directory holding a one-utterance corpus; the produced TextGrid is
// uploaded next to the job's input files.
type MFAEngine struct {
	files   FileStore
	store   alignment.Store
	models  ModelCatalog
	workDir string
}

// NewMFAEngine creates an engine writing scratch data under workDir.
func NewMFAEngine(
	files FileStore, store alignment.Store, models ModelCatalog, workDir string,
) *MFAEngine {
	return &MFAEngine{files: files, store: store, models: models, workDir: workDir}
}

// Align downloads the job's files, runs mfa align and uploads the result.
func (e *MFAEngine) Align(ctx context.Context, job *model.AlignmentJob) (string, error) {
	scratch, err := os.MkdirTemp(e.workDir, fmt.Sprintf("job-%d-", job.ID))
	if err != nil {
		return "", errors.Wrap(err, "creating scratch directory")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.WithError(err).WithField("path", scratch).Warn("failed to clean scratch directory")
		}
	}()

	corpusDir := filepath.Join(scratch, "corpus")
	outputDir := filepath.Join(scratch, "output")
	for _, dir := range []string{corpusDir, outputDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "creating %s", dir)
		}
	}

	// MFA pairs audio and transcript by basename within the corpus directory.
	audioExt := strings.ToLower(filepath.Ext(job.AudioPath))
	if err := e.download(ctx, job.AudioPath, filepath.Join(corpusDir, "utterance"+audioExt)); err != nil {
		return "", err
	}
	if err := e.download(ctx, job.TextPath, filepath.Join(corpusDir, "utterance.txt")); err != nil {
		return "", err
	}

	dictionaryName := e.modelName(ctx, job.DictionaryModelID, job.DictionaryModelName)
	acousticName := e.modelName(ctx, job.AcousticModelID, job.AcousticModelName)
	args := []string{
		"align", corpusDir,
		dictionaryName, acousticName,
		outputDir,
		"--clean", "--overwrite",
	}
	if job.G2PModelName.Valid {
		args = append(args, "--g2p_model_path",
			e.modelName(ctx, job.G2PModelID, job.G2PModelName.ValueOrZero()))
	}
	cmd := exec.CommandContext(ctx, "mfa", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "alignment timed out")
		}
		return "", errors.Errorf("mfa align failed: %s", tail(string(out), 1000))
	}

	resultFile := filepath.Join(outputDir, "utterance.TextGrid")
	return e.uploadResult(ctx, job, resultFile)
}

// modelName returns the canonical name of the catalog row resolved at
// admission time. When the snapshot link is gone (a catalog rebuild clears
// it) the user's submitted name is used instead.
func (e *MFAEngine) modelName(ctx context.Context, id null.Int, submitted string) string {
	if !id.Valid {
		return submitted
	}
	m, err := e.models.ModelByID(ctx, model.SpeechModelID(id.ValueOrZero()))
	if err != nil {
		log.WithError(err).WithField("model_id", id.ValueOrZero()).
			Warn("resolved model snapshot missing, using submitted name")
		return submitted
	}
	return m.Name
}

func (e *MFAEngine) download(ctx context.Context, key, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	defer f.Close()
	return e.files.Download(ctx, key, f)
}

func (e *MFAEngine) uploadResult(
	ctx context.Context, job *model.AlignmentJob, resultFile string,
) (string, error) {
	f, err := os.Open(resultFile)
	if err != nil {
		return "", errors.Wrap(err, "alignment produced no result file")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("users/%d/jobs/%d/result.TextGrid", job.OwnerID, job.ID)
	if err := e.files.Upload(ctx, key, f, "text/plain"); err != nil {
		return "", err
	}

	meta := &model.FileMetadata{
		UserID:           job.OwnerID,
		JobID:            null.IntFrom(int64(job.ID)),
		Kind:             model.FileKindResult,
		OriginalFilename: filepath.Base(resultFile),
		StoragePath:      key,
		Size:             info.Size(),
		MimeType:         null.StringFrom("text/plain"),
	}
	if err := e.store.AddFileMetadata(ctx, meta); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Warn("failed to record result metadata")
	}
	return key, nil
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
