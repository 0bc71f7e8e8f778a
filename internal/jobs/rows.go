package jobs

import (
	"sort"
	"time"

	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/format"
)

// Row is one line of the upload table: either a confirmed upload job or a
// pending one still waiting for the server.
type Row struct {
	Key      string    `json:"key"`
	JobID    string    `json:"jobId,omitempty"`
	Name     string    `json:"jobName"`
	Status   Status    `json:"status"`
	Pending  bool      `json:"pending"`
	Files    []string  `json:"files,omitempty"`
	Progress string    `json:"progress,omitempty"`
	Error    string    `json:"error,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Rows merges pending and confirmed upload jobs, newest first.
func (t *Tracker) Rows() []Row {
	uploads := t.UploadJobs()
	pending := t.Pending()

	rows := make([]Row, 0, len(uploads)+len(pending))
	for _, p := range pending {
		rows = append(rows, Row{
			Key:      p.CorrelationKey,
			Name:     p.Name,
			Status:   StatusWaiting,
			Pending:  true,
			Files:    p.ServiceFields.Files,
			Created:  p.Created,
			Modified: p.Created,
		})
	}
	for _, job := range uploads {
		row := Row{
			Key:      job.ID,
			JobID:    job.ID,
			Name:     job.Name,
			Status:   job.Status,
			Files:    job.ServiceFields.Files,
			Error:    job.ServiceFields.Error,
			Created:  job.Created,
			Modified: job.Modified,
		}
		if job.ServiceFields.TotalBytes > 0 {
			row.Progress = format.Progress(job.ServiceFields.BytesCopied, job.ServiceFields.TotalBytes)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Created.After(rows[j].Created)
	})
	return rows
}
