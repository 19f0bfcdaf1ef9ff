package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ImportRun is one attempt at importing a listing URL, kept in the local
// run log for operators.
type ImportRun struct {
	ID              int64      `json:"id" db:"id"`
	URL             string     `json:"url" db:"url"`
	SourceID        string     `json:"source_id" db:"source_id"`
	UserID          string     `json:"user_id" db:"user_id"`
	ListingID       string     `json:"listing_id" db:"listing_id"`
	Status          RunStatus  `json:"status" db:"status"`
	CandidatesFound int        `json:"candidates_found" db:"candidates_found"`
	ImagesSaved     int        `json:"images_saved" db:"images_saved"`
	ImageErrors     int        `json:"image_errors" db:"image_errors"`
	ErrorMessage    string     `json:"error_message" db:"error_message"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
}
