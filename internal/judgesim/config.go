package judgesim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	AdminToken string        // Used to list judges when Tokens is empty
	Tokens     []string      // Judge tokens to drive; all judges when empty
	Timeout    time.Duration // HTTP request timeout
	UndoRate   float64       // Probability of undoing a submission and resubmitting
	Seed       uint64        // Seed for scores and undo decisions
	MaxSteps   int           // Per-judge cap on submissions; 0 means until complete
	Verbose    bool          // Log every step
}

// Stats holds simulation statistics.
type Stats struct {
	Judges      int
	Submitted   int
	Accepted    int
	Satisfied   int
	Undone      int
	Failed      int
	Retried     int
	Completed   int // judges that drained their queue
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	FinalReport Report
}

// Report mirrors the service's GET /stats body.
type Report struct {
	Seed               int64   `json:"seed"`
	RequiredCount      int     `json:"required_count"`
	ScanCount          int64   `json:"scan_count"`
	Judges             int     `json:"judges"`
	Tasks              int     `json:"tasks"`
	OpenTasks          int     `json:"open_tasks"`
	CompletedTasks     int     `json:"completed_tasks"`
	RetiredTasks       int     `json:"retired_tasks"`
	Ratings            int     `json:"ratings"`
	PendingAssignments int     `json:"pending_assignments"`
	Coverage           float64 `json:"coverage"`
}

// Dimension is one axis of the rubric as served with an item.
type Dimension struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Item is the part of an item view the simulator needs.
type Item struct {
	AssignmentID int64       `json:"assignment_id"`
	TaskID       int64       `json:"task_id"`
	Dimensions   []Dimension `json:"dimensions"`
	Scores       []int       `json:"scores"`
}

// Next is the GET /judges/{token}/next body.
type Next struct {
	Status   string `json:"status"`
	Item     *Item  `json:"item"`
	Progress struct {
		Done    int `json:"done"`
		Pending int `json:"pending"`
	} `json:"progress"`
}

// SubmitResponse is the POST /judges/{token}/submit body.
type SubmitResponse struct {
	Status       string `json:"status"`
	AssignmentID int64  `json:"assignment_id"`
	Completed    bool   `json:"completed"`
}

type judgeEntry struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}
