// Package monitor keeps the local job view in sync with the job status
// service and turns user actions on jobs into service requests.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/eventstream"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jss"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

const (
	EventInitialJobs = "initialJobs"
	EventJobInsert   = "jobInsert"
	EventJobUpdate   = "jobUpdate"
)

const (
	disconnectMessage = "Lost connection to the job service. Reconnecting..."
	reconnectMessage  = "Reconnected to the job service."
)

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrNotStarted     = errors.New("monitor not started")
)

// JobService is the subset of the job status service the monitor drives.
type JobService interface {
	CreateJob(ctx context.Context, req jss.CreateJobRequest) (*jss.CreateJobResponse, error)
	RetryJob(ctx context.Context, jobID string) (*jobs.Job, error)
	CancelJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context, user string) ([]jobs.Job, error)
	EventsURL(user string) string
}

type Config struct {
	User string
	// ResyncSchedule is a cron expression for full list refreshes; empty
	// disables them.
	ResyncSchedule string
	ReconnectDelay time.Duration
}

// SubmitRequest describes an upload the user wants to start.
type SubmitRequest struct {
	Name       string
	Files      []string
	TotalBytes int64
	Extra      map[string]any
}

type Monitor struct {
	cfg     Config
	service JobService
	tracker *jobs.Tracker
	alerts  *alerts.Center
	dialer  eventstream.Dialer

	resync singleflight.Group

	mu       sync.Mutex
	stream   *eventstream.Stream
	cron     *cron.Cron
	cronID   cron.EntryID
	cancel   context.CancelFunc
	hostname string
}

func New(cfg Config, service JobService, tracker *jobs.Tracker, center *alerts.Center, dialer eventstream.Dialer) *Monitor {
	host, err := os.Hostname()
	if err != nil {
		log.Warn("Could not determine hostname: %v", err)
	}
	return &Monitor{
		cfg:      cfg,
		service:  service,
		tracker:  tracker,
		alerts:   center,
		dialer:   dialer,
		hostname: host,
	}
}

// Start subscribes to job events for the configured user and schedules
// periodic resyncs. It returns once the subscription has been started.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	var scheduler *cron.Cron
	var entryID cron.EntryID
	if m.cfg.ResyncSchedule != "" {
		scheduler = cron.New()
		id, err := scheduler.AddFunc(m.cfg.ResyncSchedule, func() {
			if err := m.Resync(runCtx); err != nil {
				log.Warn("Scheduled resync failed: %v", err)
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("invalid resync schedule %q: %w", m.cfg.ResyncSchedule, err)
		}
		entryID = id
	}

	var opts []eventstream.Option
	if m.cfg.ReconnectDelay > 0 {
		opts = append(opts, eventstream.WithReconnectDelay(m.cfg.ReconnectDelay))
	}
	url := m.service.EventsURL(m.cfg.User)
	stream := eventstream.New(url, m.dialer, opts...)

	stream.OnDisconnect(m.handleDisconnect)
	stream.OnReconnect(func() { m.handleReconnect(runCtx) })
	stream.AddEventListener(EventInitialJobs, m.handleInitialJobs)
	stream.AddEventListener(EventJobInsert, m.handleJobInsert)
	stream.AddEventListener(EventJobUpdate, m.handleJobUpdate)

	m.stream = stream
	m.cancel = cancel
	if scheduler != nil {
		scheduler.Start()
		m.cron = scheduler
		m.cronID = entryID
	}

	log.Info("Watching jobs for %s at %s", m.cfg.User, url)
	return nil
}

// Close stops the subscription and the resync schedule.
func (m *Monitor) Close() error {
	m.mu.Lock()
	stream, scheduler, cancel := m.stream, m.cron, m.cancel
	m.stream, m.cron, m.cancel = nil, nil, nil
	m.mu.Unlock()

	if stream == nil {
		return ErrNotStarted
	}
	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := stream.Close(); err != nil && !errors.Is(err, eventstream.ErrClosed) {
		return err
	}
	return nil
}

// Resync replaces the local view with the service's full job list.
// Concurrent calls share one request.
func (m *Monitor) Resync(ctx context.Context) error {
	_, err, shared := m.resync.Do("resync", func() (any, error) {
		list, err := m.service.ListJobs(ctx, m.cfg.User)
		if err != nil {
			return nil, err
		}
		m.tracker.ApplySnapshot(list)
		log.Debug("Resynced %d jobs", len(list))
		return nil, nil
	})
	if shared {
		log.Debug("Resync joined an in-flight request")
	}
	return err
}

// Submit records a pending upload and registers it with the service. The
// pending entry is retired when the service's insert event arrives.
func (m *Monitor) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Name == "" {
		return "", fmt.Errorf("submit: job name is required")
	}
	pending := jobs.NewPendingJob(req.Name, m.cfg.User, jobs.ServiceFields{
		Type:       jobs.TypeUpload,
		Files:      req.Files,
		TotalBytes: req.TotalBytes,
		Extra:      req.Extra,
	})
	m.tracker.AddPending(pending)

	resp, err := m.service.CreateJob(ctx, jss.CreateJobRequest{
		Name:            req.Name,
		User:            m.cfg.User,
		Status:          jobs.StatusWaiting,
		OriginationHost: m.hostname,
		ServiceFields:   pending.ServiceFields,
	})
	if err != nil {
		m.tracker.RemovePending(pending.CorrelationKey)
		m.raise(fmt.Sprintf("Upload %s failed: %v", req.Name, err))
		return "", err
	}
	log.Info("Submitted upload %s as job %s", req.Name, resp.JobID)
	return resp.JobID, nil
}

// RetryJob asks the service to retry jobID. The local record only changes
// when the service reports the new status.
func (m *Monitor) RetryJob(ctx context.Context, jobID string) error {
	if _, err := m.service.RetryJob(ctx, jobID); err != nil {
		m.raise(fmt.Sprintf("Retry upload %s failed: %v", m.jobLabel(jobID), err))
		return err
	}
	log.Info("Requested retry of job %s", jobID)
	return nil
}

// CancelJob asks the service to stop jobID, with the same rules as RetryJob.
func (m *Monitor) CancelJob(ctx context.Context, jobID string) error {
	if _, err := m.service.CancelJob(ctx, jobID); err != nil {
		m.raise(fmt.Sprintf("Cancel upload %s failed: %v", m.jobLabel(jobID), err))
		return err
	}
	log.Info("Requested cancel of job %s", jobID)
	return nil
}

func (m *Monitor) SafeToExit() bool {
	return m.tracker.SafeToExit()
}

func (m *Monitor) Rows() []jobs.Row {
	return m.tracker.Rows()
}

func (m *Monitor) Tracker() *jobs.Tracker {
	return m.tracker
}

// Connected reports whether the job event stream is live.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	return stream != nil && stream.Connected()
}

// NextResync returns when the next scheduled resync runs, or the zero time.
func (m *Monitor) NextResync() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron == nil {
		return time.Time{}
	}
	return m.cron.Entry(m.cronID).Next
}

func (m *Monitor) jobLabel(jobID string) string {
	if job, ok := m.tracker.Get(jobID); ok && job.Name != "" {
		return job.Name
	}
	return jobID
}

func (m *Monitor) raise(message string) {
	log.Error("%s", message)
	m.alerts.SetAlert(alerts.Alert{Type: alerts.LevelError, Message: message})
}

func (m *Monitor) handleDisconnect() {
	m.alerts.SetAlert(alerts.Alert{
		Type:        alerts.LevelWarn,
		Message:     disconnectMessage,
		ManualClear: true,
	})
}

func (m *Monitor) handleReconnect(ctx context.Context) {
	m.alerts.ClearAlert()
	m.alerts.SetAlert(alerts.Alert{Type: alerts.LevelSuccess, Message: reconnectMessage})
	// events pushed while disconnected are lost
	go func() {
		if err := m.Resync(ctx); err != nil {
			log.Warn("Resync after reconnect failed: %v", err)
		}
	}()
}

func (m *Monitor) handleInitialJobs(ev eventstream.Event) {
	list, err := jobs.DecodeJobs(ev.Data)
	if err != nil {
		log.Error("Ignoring %s event: %v", ev.Type, err)
		return
	}
	m.tracker.ApplySnapshot(list)
}

func (m *Monitor) handleJobInsert(ev eventstream.Event) {
	job, err := jobs.DecodeJob(ev.Data)
	if err != nil {
		log.Error("Ignoring %s event: %v", ev.Type, err)
		return
	}
	m.tracker.Insert(job)
}

func (m *Monitor) handleJobUpdate(ev eventstream.Event) {
	job, err := jobs.DecodeJob(ev.Data)
	if err != nil {
		log.Error("Ignoring %s event: %v", ev.Type, err)
		return
	}
	if !m.tracker.Update(job) {
		log.Debug("Dropped update for job %s", job.ID)
	}
}

// IncompleteJobIDs lists upload jobs still in flight.
func (m *Monitor) IncompleteJobIDs() []string {
	return m.tracker.IncompleteJobIDs()
}

// Subscribe signals after every change to the job view.
func (m *Monitor) Subscribe() (<-chan struct{}, func()) {
	return m.tracker.Subscribe()
}
