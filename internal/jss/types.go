package jss

import "github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"

// ServiceName identifies this client's jobs on the job status service.
const ServiceName = "file-upload-app"

type CreateJobRequest struct {
	Name            string             `json:"jobName"`
	User            string             `json:"user"`
	Service         string             `json:"service"`
	Status          jobs.Status        `json:"status"`
	OriginationHost string             `json:"originationHost,omitempty"`
	ServiceFields   jobs.ServiceFields `json:"serviceFields"`
}

type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// UpdateJobRequest is a partial update; zero fields are left untouched.
type UpdateJobRequest struct {
	Status        jobs.Status         `json:"status,omitempty"`
	CurrentStage  string              `json:"currentStage,omitempty"`
	ServiceFields *jobs.ServiceFields `json:"serviceFields,omitempty"`
}
