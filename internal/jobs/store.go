package jobs

import "context"

// Store persists the tracker's view so it survives a restart.
type Store interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	ReplaceJobs(ctx context.Context, jobs []*Job) error
	UpsertJob(ctx context.Context, job *Job) error
	LoadPending(ctx context.Context) ([]*PendingJob, error)
	UpsertPending(ctx context.Context, pending *PendingJob) error
	DeletePending(ctx context.Context, correlationKey string) error
}
