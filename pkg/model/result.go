package model

import "time"

type StageStatus string

const (
	StageStatusPlanned StageStatus = "planned"
	StageStatusSuccess StageStatus = "success"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
)

type StageResult struct {
	Name     string        `json:"name"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
	Output   string        `json:"output,omitempty"`
}

type RunResult struct {
	RunID           string        `json:"run_id"`
	Status          string        `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	Cluster         string        `json:"cluster"`
	Region          string        `json:"region"`
	EndpointAddress string        `json:"endpoint_address,omitempty"`
	InvokeURL       string        `json:"invoke_url,omitempty"`
	DryRun          bool          `json:"dry_run"`
	Stages          []StageResult `json:"stages"`
	Error           string        `json:"error,omitempty"`
}
