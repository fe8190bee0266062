// Package model contains domain models passed between layers.
package model

import "time"

// DefaultRequiredCount is the number of independent judgments a task needs.
const DefaultRequiredCount = 3

// Campaign is the singleton row describing one judging campaign.
type Campaign struct {
	Seed          int64
	RequiredCount int
	ScanCount     int64 // successful reconcile passes so far
	CreatedAt     time.Time
}

// Judge is a registered reviewer identity.
type Judge struct {
	ID        int64
	Name      string
	Token     string // opaque access token
	CreatedAt time.Time
}

// Group is the reference artifact shared by the candidates judged against it.
type Group struct {
	ID               string // external work-group id
	PromptText       string
	ReferenceLocator string
}

// Task is one reference-plus-candidate pair requiring RequiredCount judgments.
type Task struct {
	ID               int64
	GroupID          string
	CandidateID      string
	CandidateLocator string
	RequiredCount    int
	CurrentCount     int
	Completed        bool
	CompletedAt      *time.Time
	RetiredAt        *time.Time // set while the content source no longer lists the task
}

// Retired reports whether the task was dropped by the content source.
func (t Task) Retired() bool { return t.RetiredAt != nil }

// Assignment binds one judge to one task at a position in the judge's queue.
type Assignment struct {
	ID           int64
	JudgeID      int64
	TaskID       int64
	DisplayOrder int
	Finished     bool
	FinishedAt   *time.Time
}

// Rating is the score vector a judge submitted for a task.
type Rating struct {
	ID          int64
	JudgeID     int64
	TaskID      int64
	Scores      []int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time // nil while the rating is a revisable draft
}

// Draft reports whether the rating is provisional.
func (r Rating) Draft() bool { return r.SubmittedAt == nil }

// Progress summarises one judge's queue.
type Progress struct {
	Done    int
	Pending int
}

// Total returns done plus pending.
func (p Progress) Total() int { return p.Done + p.Pending }

// Stats is a campaign-wide snapshot for monitoring.
type Stats struct {
	Judges            int
	Tasks             int
	OpenTasks         int // live and below quota
	CompletedTasks    int
	RetiredTasks      int
	Ratings           int
	PendingAssignment int
	RequiredRatings   int // sum of required_count over live tasks
	CurrentRatings    int // sum of current_count over live tasks
}

// ScanRequest asks the sync runner for an on-demand reconcile pass.
type ScanRequest struct {
	ID          string
	Reason      string
	RequestedAt time.Time
}
