package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindDetail RunKind = "detail"
	RunKindIndex  RunKind = "index"
)

type ScrapeRun struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Kind           RunKind    `json:"kind" db:"kind"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	URLsTotal      int        `json:"urls_total" db:"urls_total"`
	RecordsWritten int        `json:"records_written" db:"records_written"`
	SectionsFailed int        `json:"sections_failed" db:"sections_failed"`
	ObjectKey      string     `json:"object_key" db:"object_key"`
	Error          string     `json:"error" db:"error"`
}
