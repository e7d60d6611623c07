package types

import "time"

// RunStatus is the lifecycle state of a sync run. A run is created pending,
// moves to in_progress before the first creation attempt, and ends in exactly
// one terminal state.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// ItemOutcome is the per-item result recorded for each attempted node.
type ItemOutcome string

const (
	ItemOutcomeCreated ItemOutcome = "created"
	ItemOutcomeFailed  ItemOutcome = "failed"
	ItemOutcomeSkipped ItemOutcome = "skipped"
)

// SyncRun is the aggregate record for one end-to-end sync invocation.
// Counters only ever increase within a run; TotalItems is computed once by a
// full hierarchy walk before any item is processed.
type SyncRun struct {
	ID              string     `json:"id"`
	SourceConfigID  string     `json:"sourceConfigId"`
	TargetConfigID  string     `json:"targetConfigId"`
	ProjectName     string     `json:"projectName"`
	Status          RunStatus  `json:"status"`
	Overwrite       bool       `json:"overwrite"`
	TotalItems      int        `json:"totalItems"`
	CreatedCount    int        `json:"createdCount"`
	FailedCount     int        `json:"failedCount"`
	EpicsCreated    int        `json:"epicsCreated"`
	EpicsFailed     int        `json:"epicsFailed"`
	FeaturesCreated int        `json:"featuresCreated"`
	FeaturesFailed  int        `json:"featuresFailed"`
	StoriesCreated  int        `json:"storiesCreated"`
	StoriesFailed   int        `json:"storiesFailed"`
	DeletedCount    int        `json:"deletedCount"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	DurationMillis  int64      `json:"durationMillis"`
}

// RunCounter names one SyncRun counter for increment operations.
type RunCounter string

const (
	CounterCreated         RunCounter = "created_count"
	CounterFailed          RunCounter = "failed_count"
	CounterEpicsCreated    RunCounter = "epics_created"
	CounterEpicsFailed     RunCounter = "epics_failed"
	CounterFeaturesCreated RunCounter = "features_created"
	CounterFeaturesFailed  RunCounter = "features_failed"
	CounterStoriesCreated  RunCounter = "stories_created"
	CounterStoriesFailed   RunCounter = "stories_failed"
	CounterDeleted         RunCounter = "deleted_count"
)

// SyncRunItem is one row per attempted node.
type SyncRunItem struct {
	ID           string      `json:"id"`
	RunID        string      `json:"runId"`
	SourceID     string      `json:"sourceId"`
	Name         string      `json:"name"`
	ItemType     ItemType    `json:"itemType"`
	Outcome      ItemOutcome `json:"outcome"`
	TargetID     int         `json:"targetId,omitempty"`
	TargetURL    string      `json:"targetUrl,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// TypeCounts is the per-item-type slice of the final summary. Total counts
// attempted items only; nodes skipped under a failed parent appear nowhere.
type TypeCounts struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// SyncSummary is the payload of the terminal sync:complete event. Total is
// the pre-walk item count.
type SyncSummary struct {
	Total       int        `json:"total"`
	Created     int        `json:"created"`
	Failed      int        `json:"failed"`
	Epics       TypeCounts `json:"epics"`
	Features    TypeCounts `json:"features"`
	UserStories TypeCounts `json:"userStories"`
}
