package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	jobs    map[string]*Job
	pending map[string]*PendingJob
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:    make(map[string]*Job),
		pending: make(map[string]*PendingJob),
	}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*Job, error) {
	ret := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) ReplaceJobs(_ context.Context, jobs []*Job) error {
	m.jobs = make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		m.jobs[j.ID] = cloneJob(j)
	}
	return nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *Job) error {
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) LoadPending(_ context.Context) ([]*PendingJob, error) {
	ret := make([]*PendingJob, 0, len(m.pending))
	for _, p := range m.pending {
		ret = append(ret, clonePending(p))
	}
	return ret, nil
}

func (m *memoryStore) UpsertPending(_ context.Context, p *PendingJob) error {
	m.pending[p.CorrelationKey] = clonePending(p)
	return nil
}

func (m *memoryStore) DeletePending(_ context.Context, key string) error {
	delete(m.pending, key)
	return nil
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func uploadJob(id string, status Status) Job {
	return Job{
		ID:       id,
		Name:     "upload " + id,
		Status:   status,
		Created:  t0,
		Modified: t0,
		User:     "jdoe",
		ServiceFields: ServiceFields{
			Type:  TypeUpload,
			Files: []string{"/data/" + id + ".czi"},
		},
	}
}

func copyJob(id, parent string, status Status) Job {
	return Job{
		ID:            id,
		Status:        status,
		Created:       t0,
		Modified:      t0,
		ParentID:      parent,
		ServiceFields: ServiceFields{Type: TypeCopy},
	}
}

func TestTracker_InsertConfirmsMatchingPending(t *testing.T) {
	tr := NewTracker(nil)
	matching := NewPendingJob("plate 1", "jdoe", ServiceFields{Files: []string{"/data/a.czi"}})
	other := NewPendingJob("plate 2", "jdoe", ServiceFields{Files: []string{"/data/b.czi"}})
	tr.AddPending(matching)
	tr.AddPending(other)

	job := uploadJob("job-1", StatusWaiting)
	job.ServiceFields.CorrelationKey = matching.CorrelationKey

	removed := tr.Insert(job)

	require.True(t, removed)
	pending := tr.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, other.CorrelationKey, pending[0].CorrelationKey)
	require.Len(t, tr.UploadJobs(), 1)
	assert.Equal(t, "job-1", tr.UploadJobs()[0].ID)
}

func TestTracker_InsertWithoutCorrelationKeepsPending(t *testing.T) {
	tr := NewTracker(nil)
	tr.AddPending(NewPendingJob("plate 1", "jdoe", ServiceFields{}))

	removed := tr.Insert(uploadJob("job-1", StatusWaiting))

	assert.False(t, removed)
	assert.Len(t, tr.Pending(), 1)
	assert.Len(t, tr.UploadJobs(), 1)
}

func TestTracker_UpdateUnknownJobIsIgnored(t *testing.T) {
	tr := NewTracker(nil)
	tr.Insert(uploadJob("job-1", StatusWaiting))

	applied := tr.Update(uploadJob("job-404", StatusWorking))

	assert.False(t, applied)
	_, ok := tr.Get("job-404")
	assert.False(t, ok)
	assert.Len(t, tr.UploadJobs(), 1)
}

func TestTracker_UpdateReplacesRecord(t *testing.T) {
	tr := NewTracker(nil)
	tr.Insert(uploadJob("job-1", StatusWaiting))

	next := uploadJob("job-1", StatusWorking)
	next.Modified = t0.Add(time.Minute)
	next.ServiceFields.BytesCopied = 10
	next.ServiceFields.TotalBytes = 20

	require.True(t, tr.Update(next))
	got, ok := tr.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, StatusWorking, got.Status)
	assert.EqualValues(t, 10, got.ServiceFields.BytesCopied)
}

func TestTracker_TerminalStatusIsNeverOverwritten(t *testing.T) {
	for _, terminal := range []Status{StatusSucceeded, StatusFailed, StatusUnrecoverable} {
		t.Run(string(terminal), func(t *testing.T) {
			tr := NewTracker(nil)
			tr.Insert(uploadJob("job-1", terminal))

			late := uploadJob("job-1", StatusWorking)
			late.Modified = t0.Add(time.Hour)

			assert.False(t, tr.Update(late))
			tr.Insert(late)

			got, _ := tr.Get("job-1")
			assert.Equal(t, terminal, got.Status)
		})
	}
}

func TestTracker_RetryCycleIsAllowed(t *testing.T) {
	tr := NewTracker(nil)
	tr.Insert(uploadJob("job-1", StatusWorking))

	for i, status := range []Status{StatusRetrying, StatusWorking, StatusBlocked, StatusWorking, StatusSucceeded} {
		next := uploadJob("job-1", status)
		next.Modified = t0.Add(time.Duration(i+1) * time.Second)
		require.True(t, tr.Update(next), "transition to %s", status)
	}
	got, _ := tr.Get("job-1")
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestTracker_StaleUpdateIsIgnored(t *testing.T) {
	tr := NewTracker(nil)
	current := uploadJob("job-1", StatusWorking)
	current.Modified = t0.Add(time.Minute)
	tr.Insert(current)

	assert.False(t, tr.Update(uploadJob("job-1", StatusWaiting)))
}

func TestTracker_SnapshotReplacesEverything(t *testing.T) {
	tr := NewTracker(nil)
	tr.Insert(uploadJob("old", StatusWorking))
	p := NewPendingJob("plate 1", "jdoe", ServiceFields{})
	tr.AddPending(p)

	confirmed := uploadJob("job-1", StatusWaiting)
	confirmed.ServiceFields.CorrelationKey = p.CorrelationKey
	tr.ApplySnapshot([]Job{
		confirmed,
		copyJob("copy-1", "job-1", StatusWorking),
		{ID: "meta-1", Status: StatusWaiting, ServiceFields: ServiceFields{Type: TypeAddMetadata}},
	})

	_, ok := tr.Get("old")
	assert.False(t, ok)
	assert.Empty(t, tr.Pending())
	assert.Len(t, tr.UploadJobs(), 1)
	assert.Len(t, tr.CopyJobs(), 1)
	assert.Len(t, tr.MetadataJobs(), 1)
	assert.Equal(t, []string{"job-1"}, tr.IncompleteJobIDs())
}

func TestTracker_SafeToExit(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.True(t, NewTracker(nil).SafeToExit())
	})

	t.Run("upload without copy job", func(t *testing.T) {
		tr := NewTracker(nil)
		tr.ApplySnapshot([]Job{uploadJob("job-1", StatusWaiting)})
		assert.False(t, tr.SafeToExit())
	})

	t.Run("copy in progress", func(t *testing.T) {
		tr := NewTracker(nil)
		tr.ApplySnapshot([]Job{uploadJob("job-1", StatusWorking), copyJob("copy-1", "job-1", StatusWorking)})
		assert.False(t, tr.SafeToExit())
	})

	t.Run("copy done, metadata pending", func(t *testing.T) {
		tr := NewTracker(nil)
		tr.ApplySnapshot([]Job{uploadJob("job-1", StatusWorking), copyJob("copy-1", "job-1", StatusSucceeded)})
		assert.True(t, tr.SafeToExit())
	})

	t.Run("copy referenced by id", func(t *testing.T) {
		upload := uploadJob("job-1", StatusWorking)
		upload.ServiceFields.CopyJobID = "copy-9"
		tr := NewTracker(nil)
		tr.ApplySnapshot([]Job{upload, copyJob("copy-9", "", StatusSucceeded)})
		assert.True(t, tr.SafeToExit())
	})

	t.Run("finished uploads only", func(t *testing.T) {
		tr := NewTracker(nil)
		tr.ApplySnapshot([]Job{uploadJob("job-1", StatusFailed), uploadJob("job-2", StatusSucceeded)})
		assert.True(t, tr.SafeToExit())
	})

	t.Run("one unsafe among many", func(t *testing.T) {
		tr := NewTracker(nil)
		tr.ApplySnapshot([]Job{
			uploadJob("job-1", StatusWorking), copyJob("copy-1", "job-1", StatusSucceeded),
			uploadJob("job-2", StatusRetrying), copyJob("copy-2", "job-2", StatusRetrying),
		})
		assert.False(t, tr.SafeToExit())
	})
}

func TestTracker_RowsMergePendingAndUploads(t *testing.T) {
	tr := NewTracker(nil)
	job := uploadJob("job-1", StatusWorking)
	job.ServiceFields.BytesCopied = 2134
	job.ServiceFields.TotalBytes = 4000
	tr.Insert(job)
	tr.Insert(copyJob("copy-1", "job-1", StatusWorking))
	tr.AddPending(NewPendingJob("plate 2", "jdoe", ServiceFields{Files: []string{"/data/b.czi"}}))

	rows := tr.Rows()

	require.Len(t, rows, 2)
	assert.True(t, rows[0].Pending)
	assert.Equal(t, "plate 2", rows[0].Name)
	assert.Equal(t, "job-1", rows[1].JobID)
	assert.Equal(t, "2.1KB / 4KB", rows[1].Progress)
}

func TestTracker_SubscribeSignalsChanges(t *testing.T) {
	tr := NewTracker(nil)
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Insert(uploadJob("job-1", StatusWaiting))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}
}

func TestTracker_PersistsAndHydrates(t *testing.T) {
	store := newMemoryStore()
	tr := NewTracker(store)
	p := NewPendingJob("plate 1", "jdoe", ServiceFields{})
	tr.AddPending(p)
	tr.Insert(uploadJob("job-1", StatusWorking))

	restored := NewTracker(store)

	require.Len(t, restored.Pending(), 1)
	assert.Equal(t, p.CorrelationKey, restored.Pending()[0].CorrelationKey)
	got, ok := restored.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, StatusWorking, got.Status)

	confirmed := uploadJob("job-2", StatusWaiting)
	confirmed.ServiceFields.CorrelationKey = p.CorrelationKey
	restored.Insert(confirmed)
	assert.Empty(t, store.pending)
}
