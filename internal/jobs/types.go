// Package jobs reconciles job records pushed by the job status service with
// the jobs this client has submitted but not yet seen confirmed.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting       Status = "WAITING"
	StatusWorking       Status = "WORKING"
	StatusRetrying      Status = "RETRYING"
	StatusBlocked       Status = "BLOCKED"
	StatusSucceeded     Status = "SUCCEEDED"
	StatusFailed        Status = "FAILED"
	StatusUnrecoverable Status = "UNRECOVERABLE"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusUnrecoverable:
		return true
	default:
		return false
	}
}

type Type string

const (
	TypeUpload      Type = "upload"
	TypeCopy        Type = "copy"
	TypeAddMetadata Type = "add_metadata"
)

type Job struct {
	ID              string        `json:"jobId"`
	Name            string        `json:"jobName,omitempty"`
	Status          Status        `json:"status"`
	Created         time.Time     `json:"created"`
	Modified        time.Time     `json:"modified"`
	OriginationHost string        `json:"originationHost,omitempty"`
	CurrentHost     string        `json:"currentHost,omitempty"`
	User            string        `json:"user"`
	Service         string        `json:"service,omitempty"`
	CurrentStage    string        `json:"currentStage,omitempty"`
	ParentID        string        `json:"parentId,omitempty"`
	ServiceFields   ServiceFields `json:"serviceFields"`
}

// ServiceFields holds the service-specific payload of a job. Keys this
// client does not know about are kept in Extra.
type ServiceFields struct {
	Type             Type     `json:"type,omitempty"`
	Files            []string `json:"files,omitempty"`
	CorrelationKey   string   `json:"correlationKey,omitempty"`
	CopyJobID        string   `json:"copyJobId,omitempty"`
	MetadataJobID    string   `json:"metadataJobId,omitempty"`
	BytesCopied      int64    `json:"bytesCopied,omitempty"`
	TotalBytes       int64    `json:"totalBytes,omitempty"`
	ReplacementJobID string   `json:"replacementJobId,omitempty"`
	Error            string   `json:"error,omitempty"`

	Extra map[string]any `json:"-"`
}

var knownServiceFields = []string{
	"type", "files", "correlationKey", "copyJobId", "metadataJobId",
	"bytesCopied", "totalBytes", "replacementJobId", "error",
}

type serviceFieldsAlias ServiceFields

func (f *ServiceFields) UnmarshalJSON(data []byte) error {
	var typed serviceFieldsAlias
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range knownServiceFields {
		delete(raw, key)
	}
	*f = ServiceFields(typed)
	if len(raw) > 0 {
		f.Extra = raw
	}
	return nil
}

func (f ServiceFields) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(serviceFieldsAlias(f))
	if err != nil {
		return nil, err
	}
	if len(f.Extra) == 0 {
		return typed, nil
	}
	merged := make(map[string]any, len(f.Extra)+len(knownServiceFields))
	for k, v := range f.Extra {
		merged[k] = v
	}
	var known map[string]any
	if err := json.Unmarshal(typed, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.ServiceFields = cloneServiceFields(job.ServiceFields)
	return &tmp
}

func cloneServiceFields(f ServiceFields) ServiceFields {
	if f.Files != nil {
		f.Files = append([]string(nil), f.Files...)
	}
	if f.Extra != nil {
		extra := make(map[string]any, len(f.Extra))
		for k, v := range f.Extra {
			extra[k] = v
		}
		f.Extra = extra
	}
	return f
}

// PendingJob stands in for an upload the user started before the job status
// service has acknowledged it. The service echoes CorrelationKey back in the
// job's serviceFields.
type PendingJob struct {
	CorrelationKey string        `json:"correlationKey"`
	Name           string        `json:"jobName"`
	User           string        `json:"user"`
	Created        time.Time     `json:"created"`
	ServiceFields  ServiceFields `json:"serviceFields"`
}

// NewPendingJob creates a pending upload with a fresh correlation key.
func NewPendingJob(name, user string, fields ServiceFields) PendingJob {
	key := uuid.NewString()
	fields = cloneServiceFields(fields)
	fields.CorrelationKey = key
	if fields.Type == "" {
		fields.Type = TypeUpload
	}
	return PendingJob{
		CorrelationKey: key,
		Name:           name,
		User:           user,
		Created:        time.Now(),
		ServiceFields:  fields,
	}
}

func clonePending(p *PendingJob) *PendingJob {
	if p == nil {
		return nil
	}
	tmp := *p
	tmp.ServiceFields = cloneServiceFields(p.ServiceFields)
	return &tmp
}
