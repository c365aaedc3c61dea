package alignment

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignlab/alignd/internal/api"
	"github.com/alignlab/alignd/internal/catalog"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

type fakeStore struct {
	nextJobID model.JobID
	jobs      map[model.JobID]*model.AlignmentJob
	metadata  []*model.FileMetadata
	updates   []*model.AlignmentJob
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextJobID: 1, jobs: map[model.JobID]*model.AlignmentJob{}}
}

func (f *fakeStore) AddJob(_ context.Context, job *model.AlignmentJob) error {
	job.ID = f.nextJobID
	f.nextJobID++
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeStore) JobByID(_ context.Context, id model.JobID) (*model.AlignmentJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeStore) ListJobs(
	_ context.Context, owner model.UserID, status *model.JobStatus, _, _ int,
) ([]model.AlignmentJob, *db.Pagination, error) {
	var jobs []model.AlignmentJob
	for _, job := range f.jobs {
		if job.OwnerID != owner {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, &db.Pagination{Total: len(jobs)}, nil
}

func (f *fakeStore) UpdateJob(_ context.Context, job *model.AlignmentJob) error {
	if _, ok := f.jobs[job.ID]; !ok {
		return db.ErrNotFound
	}
	copied := *job
	f.jobs[job.ID] = &copied
	f.updates = append(f.updates, &copied)
	return nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id model.JobID) error {
	if _, ok := f.jobs[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) AddFileMetadata(_ context.Context, meta *model.FileMetadata) error {
	f.metadata = append(f.metadata, meta)
	return nil
}

type fakeValidator struct {
	validation catalog.Validation
	gotG2P     *model.ModelRef
	called     bool
}

func (f *fakeValidator) ValidateSameLanguage(
	_ context.Context, _, _ model.ModelRef, g2p *model.ModelRef,
) (catalog.Validation, error) {
	f.called = true
	f.gotG2P = g2p
	return f.validation, nil
}

type fakeFileStore struct {
	uploads  map[string]string
	deleted  []string
	failKeys map[string]bool
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{uploads: map[string]string{}, failKeys: map[string]bool{}}
}

func (f *fakeFileStore) Upload(
	_ context.Context, key string, body io.Reader, _ string,
) error {
	if f.failKeys[strings.ToLower(pathExt(key))] {
		return errors.New("upload failed")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = string(data)
	return nil
}

func (f *fakeFileStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.uploads, key)
	return nil
}

func pathExt(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i:]
	}
	return ""
}

type fakeQuota struct {
	allow   bool
	charged int64
	checked int64
}

func (f *fakeQuota) CheckStorageQuota(
	_ context.Context, _ model.UserID, required int64,
) (bool, error) {
	f.checked = required
	return f.allow, nil
}

func (f *fakeQuota) AddStorageUsage(_ context.Context, _ model.UserID, delta int64) error {
	f.charged += delta
	return nil
}

type fakeEnqueuer struct {
	published []model.JobID
	err       error
}

func (f *fakeEnqueuer) PublishJob(id model.JobID) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func okValidation() catalog.Validation {
	return catalog.Validation{
		OK:         true,
		LanguageID: 1,
		Acoustic:   &model.SpeechModel{ID: 11, LanguageID: 1},
		Dictionary: &model.SpeechModel{ID: 12, LanguageID: 1},
	}
}

type admissionFixture struct {
	service   *Service
	store     *fakeStore
	validator *fakeValidator
	files     *fakeFileStore
	quota     *fakeQuota
	enqueuer  *fakeEnqueuer
}

func newAdmissionFixture(validation catalog.Validation) *admissionFixture {
	f := &admissionFixture{
		store:     newFakeStore(),
		validator: &fakeValidator{validation: validation},
		files:     newFakeFileStore(),
		quota:     &fakeQuota{allow: true},
		enqueuer:  &fakeEnqueuer{},
	}
	f.service = NewService(f.store, f.validator, f.files, f.quota, f.enqueuer)
	return f
}

func testUser() model.User {
	return model.User{ID: 1, Username: "alice", Active: true}
}

func jobRequest(audioName, textName string) JobRequest {
	return JobRequest{
		Audio: Upload{
			Filename:    audioName,
			Size:        1000,
			ContentType: "audio/wav",
			Body:        strings.NewReader("audio-bytes"),
		},
		Text: Upload{
			Filename:    textName,
			Size:        100,
			ContentType: "text/plain",
			Body:        strings.NewReader("text-bytes"),
		},
		Acoustic:   model.ModelRef{Name: "english_mfa", Version: "2.0.0"},
		Dictionary: model.ModelRef{Name: "english_mfa", Version: "2.0.0"},
	}
}

func TestCreateJob(t *testing.T) {
	f := newAdmissionFixture(okValidation())

	job, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("speech.wav", "transcript.txt"))
	require.NoError(t, err)

	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, model.UserID(1), job.OwnerID)
	assert.Equal(t, "speech.wav", job.OriginalAudioFilename)
	assert.Equal(t, "transcript.txt", job.OriginalTextFilename)
	assert.Equal(t, int64(11), job.AcousticModelID.ValueOrZero())
	assert.Equal(t, int64(12), job.DictionaryModelID.ValueOrZero())
	assert.False(t, job.G2PModelID.Valid)
	assert.True(t, strings.HasPrefix(job.AudioPath, "users/1/jobs/"))
	assert.True(t, strings.HasSuffix(job.AudioPath, ".wav"))
	assert.True(t, strings.HasSuffix(job.TextPath, ".txt"))

	assert.Len(t, f.files.uploads, 2)
	assert.Len(t, f.store.metadata, 2)
	assert.Equal(t, int64(1100), f.quota.checked)
	assert.Equal(t, int64(1100), f.quota.charged)
}

func TestCreateJobRejectsBadAudioFormat(t *testing.T) {
	f := newAdmissionFixture(okValidation())

	_, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("speech.flac", "transcript.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalid))
	assert.Contains(t, err.Error(), "Only MP3 and WAV files are allowed")

	// Format checks run before anything else; nothing may be resolved or stored.
	assert.False(t, f.validator.called)
	assert.Empty(t, f.files.uploads)
	assert.Empty(t, f.store.jobs)
	assert.Zero(t, f.quota.charged)
}

func TestCreateJobRejectsBadTextFormat(t *testing.T) {
	f := newAdmissionFixture(okValidation())

	_, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("speech.wav", "transcript.doc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalid))
	assert.Contains(t, err.Error(), "Only TXT files are allowed")
	assert.False(t, f.validator.called)
	assert.Empty(t, f.files.uploads)
}

func TestCreateJobAcceptsUppercaseExtensions(t *testing.T) {
	f := newAdmissionFixture(okValidation())

	_, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("SPEECH.WAV", "TRANSCRIPT.TXT"))
	require.NoError(t, err)
}

func TestCreateJobRejectsFailedValidation(t *testing.T) {
	f := newAdmissionFixture(catalog.Validation{
		Message: "Acoustic model 'klingon_mfa' not found",
	})

	_, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("speech.wav", "transcript.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalid))
	assert.Contains(t, err.Error(), "Acoustic model 'klingon_mfa' not found")
	assert.Empty(t, f.files.uploads)
	assert.Empty(t, f.store.jobs)
	assert.Zero(t, f.quota.charged)
}

func TestCreateJobRejectsOverQuota(t *testing.T) {
	f := newAdmissionFixture(okValidation())
	f.quota.allow = false

	_, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("speech.wav", "transcript.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrForbidden))
	assert.Contains(t, err.Error(), "Storage quota exceeded")
	assert.Empty(t, f.files.uploads)
	assert.Empty(t, f.store.jobs)
}

func TestCreateJobEmptyG2PRefTreatedAsAbsent(t *testing.T) {
	f := newAdmissionFixture(okValidation())

	req := jobRequest("speech.wav", "transcript.txt")
	req.G2P = &model.ModelRef{}
	job, err := f.service.CreateJob(context.Background(), testUser(), req)
	require.NoError(t, err)
	assert.Nil(t, f.validator.gotG2P)
	assert.False(t, job.G2PModelName.Valid)
}

func TestCreateJobVersionlessG2PRefTreatedAsAbsent(t *testing.T) {
	f := newAdmissionFixture(okValidation())

	req := jobRequest("speech.wav", "transcript.txt")
	req.G2P = &model.ModelRef{Name: "english_mfa"}
	job, err := f.service.CreateJob(context.Background(), testUser(), req)
	require.NoError(t, err)
	assert.Nil(t, f.validator.gotG2P)
	assert.False(t, job.G2PModelName.Valid)
	assert.False(t, job.G2PModelID.Valid)
}

func TestCreateJobWithG2P(t *testing.T) {
	v := okValidation()
	v.G2P = &model.SpeechModel{ID: 13, LanguageID: 1}
	f := newAdmissionFixture(v)

	req := jobRequest("speech.wav", "transcript.txt")
	req.G2P = &model.ModelRef{Name: "english_mfa", Version: "2.0.0"}
	job, err := f.service.CreateJob(context.Background(), testUser(), req)
	require.NoError(t, err)
	require.NotNil(t, f.validator.gotG2P)
	assert.Equal(t, "english_mfa", job.G2PModelName.ValueOrZero())
	assert.Equal(t, int64(13), job.G2PModelID.ValueOrZero())
}

func TestCreateJobCleansUpOrphanedAudio(t *testing.T) {
	f := newAdmissionFixture(okValidation())
	f.files.failKeys[".txt"] = true

	_, err := f.service.CreateJob(context.Background(), testUser(), jobRequest("speech.wav", "transcript.txt"))
	require.Error(t, err)
	assert.Empty(t, f.files.uploads)
	require.Len(t, f.files.deleted, 1)
	assert.True(t, strings.HasSuffix(f.files.deleted[0], ".wav"))
	assert.Empty(t, f.store.jobs)
	assert.Zero(t, f.quota.charged)
}
