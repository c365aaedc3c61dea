package alignment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

// Store is the persistence interface for alignment jobs and the file ledger.
type Store interface {
	AddJob(ctx context.Context, job *model.AlignmentJob) error
	JobByID(ctx context.Context, id model.JobID) (*model.AlignmentJob, error)
	ListJobs(ctx context.Context, owner model.UserID, status *model.JobStatus,
		skip, limit int) ([]model.AlignmentJob, *db.Pagination, error)
	UpdateJob(ctx context.Context, job *model.AlignmentJob) error
	DeleteJob(ctx context.Context, id model.JobID) error
	AddFileMetadata(ctx context.Context, meta *model.FileMetadata) error
}

// PostgresStore implements Store on the bun singleton.
type PostgresStore struct{}

// NewPostgresStore returns the Postgres-backed alignment store.
func NewPostgresStore() *PostgresStore { return &PostgresStore{} }

// AddJob inserts a job row.
func (*PostgresStore) AddJob(ctx context.Context, job *model.AlignmentJob) error {
	_, err := db.Bun().NewInsert().Model(job).Returning("*").Exec(ctx)
	return errors.Wrap(err, "adding alignment job")
}

// JobByID returns the job with the given ID.
func (*PostgresStore) JobByID(
	ctx context.Context, id model.JobID,
) (*model.AlignmentJob, error) {
	var job model.AlignmentJob
	err := db.Bun().NewSelect().Model(&job).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &job, nil
}

// ListJobs returns the owner's jobs, optionally filtered by status, newest first.
func (*PostgresStore) ListJobs(
	ctx context.Context,
	owner model.UserID,
	status *model.JobStatus,
	skip, limit int,
) ([]model.AlignmentJob, *db.Pagination, error) {
	jobs := []model.AlignmentJob{}
	q := db.Bun().NewSelect().Model(&jobs).
		Where("user_id = ?", owner).
		Order("id DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	q, pagination, err := db.Paginate(ctx, q, skip, limit)
	if err != nil {
		return nil, nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, nil, err
	}
	return jobs, pagination, nil
}

// UpdateJob writes the job's mutable fields (status, result path, error message).
func (*PostgresStore) UpdateJob(ctx context.Context, job *model.AlignmentJob) error {
	_, err := db.Bun().NewUpdate().Model(job).
		Column("status", "result_path", "error_message").
		Set("modified_at = now()").
		WherePK().
		Exec(ctx)
	return errors.Wrapf(err, "updating alignment job %d", job.ID)
}

// DeleteJob removes the job with the given ID.
func (*PostgresStore) DeleteJob(ctx context.Context, id model.JobID) error {
	res, err := db.Bun().NewDelete().Model((*model.AlignmentJob)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrapf(err, "deleting alignment job %d", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// AddFileMetadata inserts one file ledger row.
func (*PostgresStore) AddFileMetadata(ctx context.Context, meta *model.FileMetadata) error {
	_, err := db.Bun().NewInsert().Model(meta).Exec(ctx)
	return errors.Wrap(err, "adding file metadata")
}
