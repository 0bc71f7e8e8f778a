package jobs

import (
	"context"
	"sort"
	"sync"

	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

// Tracker is the client's canonical view of the user's jobs. Server snapshots,
// inserts and updates flow in; categorized collections and the safe-to-exit
// flag flow out.
type Tracker struct {
	store Store

	mu      sync.RWMutex
	jobs    map[string]*Job
	pending map[string]*PendingJob
	subs    map[int]chan struct{}
	nextSub int
}

func NewTracker(store Store) *Tracker {
	t := &Tracker{
		store:   store,
		jobs:    make(map[string]*Job),
		pending: make(map[string]*PendingJob),
		subs:    make(map[int]chan struct{}),
	}
	t.hydrateFromStore(context.Background())
	return t
}

// ApplySnapshot replaces every job with the server's full list. Pending jobs
// whose correlation key shows up in the snapshot are dropped.
func (t *Tracker) ApplySnapshot(list []Job) {
	next := make(map[string]*Job, len(list))
	for i := range list {
		job := list[i]
		if job.ID == "" {
			continue
		}
		next[job.ID] = cloneJob(&job)
	}

	t.mu.Lock()
	t.jobs = next
	confirmed := t.dropConfirmedPendingLocked(next)
	snapshot := t.jobListLocked()
	t.mu.Unlock()

	t.persistSnapshot(snapshot)
	t.forgetPending(confirmed)
	t.notify()
}

// Insert adds a newly created server job and retires the pending job it
// confirms, in one step. It reports whether a pending job was removed.
func (t *Tracker) Insert(job Job) bool {
	if job.ID == "" {
		return false
	}

	t.mu.Lock()
	removed := ""
	if key := job.ServiceFields.CorrelationKey; key != "" {
		if _, ok := t.pending[key]; ok {
			delete(t.pending, key)
			removed = key
		}
	}
	var snapshot *Job
	if existing, exists := t.jobs[job.ID]; !exists || acceptsUpdate(existing, &job) {
		stored := cloneJob(&job)
		t.jobs[job.ID] = stored
		snapshot = cloneJob(stored)
	}
	t.mu.Unlock()

	t.persistJob(snapshot)
	if removed != "" {
		t.forgetPending([]string{removed})
	}
	t.notify()
	return removed != ""
}

// Update replaces a known job. Unknown ids are ignored so updates never make
// new jobs visible, and terminal statuses are never overwritten.
func (t *Tracker) Update(job Job) bool {
	t.mu.Lock()
	existing, ok := t.jobs[job.ID]
	if !ok || !acceptsUpdate(existing, &job) {
		t.mu.Unlock()
		return false
	}
	stored := cloneJob(&job)
	t.jobs[job.ID] = stored
	snapshot := cloneJob(stored)
	t.mu.Unlock()

	t.persistJob(snapshot)
	t.notify()
	return true
}

func acceptsUpdate(existing, incoming *Job) bool {
	if existing.Status.Terminal() {
		return false
	}
	// out-of-order delivery
	if !existing.Modified.IsZero() && !incoming.Modified.IsZero() && incoming.Modified.Before(existing.Modified) {
		return false
	}
	return true
}

// AddPending records an upload the server has not confirmed yet.
func (t *Tracker) AddPending(p PendingJob) {
	if p.CorrelationKey == "" {
		return
	}
	t.mu.Lock()
	t.pending[p.CorrelationKey] = clonePending(&p)
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.UpsertPending(context.Background(), &p); err != nil {
			log.Error("Failed to persist pending job %s: %v", p.CorrelationKey, err)
		}
	}
	t.notify()
}

// RemovePending drops a pending job, e.g. after its submission failed.
func (t *Tracker) RemovePending(correlationKey string) bool {
	t.mu.Lock()
	_, ok := t.pending[correlationKey]
	delete(t.pending, correlationKey)
	t.mu.Unlock()

	if ok {
		t.forgetPending([]string{correlationKey})
		t.notify()
	}
	return ok
}

func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *cloneJob(job), true
}

func (t *Tracker) Pending() []PendingJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ret := make([]PendingJob, 0, len(t.pending))
	for _, p := range t.pending {
		ret = append(ret, *clonePending(p))
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Created.After(ret[j].Created) })
	return ret
}

// UploadJobs returns every upload job, newest first.
func (t *Tracker) UploadJobs() []Job {
	return t.filter(func(j *Job) bool { return j.ServiceFields.Type == TypeUpload })
}

// InProgressJobs returns upload jobs that have not reached a terminal status.
func (t *Tracker) InProgressJobs() []Job {
	return t.filter(isInProgressUpload)
}

func (t *Tracker) CopyJobs() []Job {
	return t.filter(func(j *Job) bool { return j.ServiceFields.Type == TypeCopy })
}

func (t *Tracker) MetadataJobs() []Job {
	return t.filter(func(j *Job) bool { return j.ServiceFields.Type == TypeAddMetadata })
}

// IncompleteJobIDs returns the ids of in-progress upload jobs, sorted.
func (t *Tracker) IncompleteJobIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0)
	for id, job := range t.jobs {
		if isInProgressUpload(job) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SafeToExit is false while any in-progress upload still has files to copy.
func (t *Tracker) SafeToExit() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, job := range t.jobs {
		if isInProgressUpload(job) && !t.copyCompleteLocked(job) {
			return false
		}
	}
	return true
}

func (t *Tracker) copyCompleteLocked(upload *Job) bool {
	if id := upload.ServiceFields.CopyJobID; id != "" {
		if copyJob, ok := t.jobs[id]; ok {
			return copyJob.Status == StatusSucceeded
		}
		return false
	}
	for _, job := range t.jobs {
		if job.ServiceFields.Type == TypeCopy && job.ParentID == upload.ID {
			return job.Status == StatusSucceeded
		}
	}
	return false
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce; call cancel to stop receiving.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) notify() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Tracker) filter(keep func(*Job) bool) []Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ret := make([]Job, 0)
	for _, job := range t.jobs {
		if keep(job) {
			ret = append(ret, *cloneJob(job))
		}
	}
	sortNewestFirst(ret)
	return ret
}

func isInProgressUpload(job *Job) bool {
	return job.ServiceFields.Type == TypeUpload && !job.Status.Terminal()
}

func sortNewestFirst(list []Job) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID < list[j].ID
		}
		return list[i].Created.After(list[j].Created)
	})
}

func (t *Tracker) dropConfirmedPendingLocked(jobs map[string]*Job) []string {
	confirmed := make([]string, 0)
	for _, job := range jobs {
		key := job.ServiceFields.CorrelationKey
		if key == "" {
			continue
		}
		if _, ok := t.pending[key]; ok {
			delete(t.pending, key)
			confirmed = append(confirmed, key)
		}
	}
	return confirmed
}

func (t *Tracker) jobListLocked() []*Job {
	ret := make([]*Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		ret = append(ret, cloneJob(job))
	}
	return ret
}

func (t *Tracker) hydrateFromStore(ctx context.Context) {
	if t.store == nil {
		return
	}
	loaded, err := t.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load cached jobs: %v", err)
	}
	pending, err := t.store.LoadPending(ctx)
	if err != nil {
		log.Error("Failed to load pending jobs: %v", err)
	}

	t.mu.Lock()
	for _, job := range loaded {
		if job == nil || job.ID == "" {
			continue
		}
		t.jobs[job.ID] = cloneJob(job)
	}
	for _, p := range pending {
		if p == nil || p.CorrelationKey == "" {
			continue
		}
		t.pending[p.CorrelationKey] = clonePending(p)
	}
	t.mu.Unlock()
}

func (t *Tracker) persistJob(job *Job) {
	if t.store == nil || job == nil {
		return
	}
	if err := t.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (t *Tracker) persistSnapshot(list []*Job) {
	if t.store == nil {
		return
	}
	if err := t.store.ReplaceJobs(context.Background(), list); err != nil {
		log.Error("Failed to persist job snapshot: %v", err)
	}
}

func (t *Tracker) forgetPending(keys []string) {
	if t.store == nil {
		return
	}
	for _, key := range keys {
		if err := t.store.DeletePending(context.Background(), key); err != nil {
			log.Error("Failed to delete pending job %s: %v", key, err)
		}
	}
}
