package sync

import (
	"strings"
	"time"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// Event types streamed to the caller. The stream ends with exactly one
// terminal event: sync:complete or sync:error.
const (
	EventOverwriteStarted  = "overwrite:started"
	EventOverwriteDeleting = "overwrite:deleting"
	EventOverwriteProgress = "overwrite:progress"
	EventOverwriteDeleted  = "overwrite:deleted"
	EventOverwriteNoItems  = "overwrite:no-items"
	EventOverwriteError    = "overwrite:error"
	EventSyncComplete      = "sync:complete"
	EventSyncError         = "sync:error"
)

// CreatedEvent returns the per-type creation event name, e.g. "epic:created".
func CreatedEvent(t types.ItemType) string {
	return strings.ToLower(string(t)) + ":created"
}

// FailedEvent returns the per-type failure event name, e.g. "feature:failed".
func FailedEvent(t types.ItemType) string {
	return strings.ToLower(string(t)) + ":failed"
}

// EventSink receives serialized progress events. Implementations must not
// block the orchestrator beyond transport backpressure.
type EventSink interface {
	Emit(event string, payload any)
}

type messagePayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type countPayload struct {
	Message   string `json:"message"`
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

type deleteProgressPayload struct {
	Message      string `json:"message"`
	Deleted      int    `json:"deleted"`
	Total        int    `json:"total"`
	CurrentChunk int    `json:"currentChunk"`
	TotalChunks  int    `json:"totalChunks"`
	Timestamp    string `json:"timestamp"`
}

type overwriteErrorPayload struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type itemCreatedPayload struct {
	ArdoqID        string `json:"ardoqId"`
	Name           string `json:"name"`
	AzureDevOpsID  int    `json:"azureDevOpsId"`
	AzureDevOpsURL string `json:"azureDevOpsUrl"`
	Timestamp      string `json:"timestamp"`
}

type itemFailedPayload struct {
	ArdoqID   string `json:"ardoqId"`
	Name      string `json:"name"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type completePayload struct {
	Summary   types.SyncSummary `json:"summary"`
	Timestamp string            `json:"timestamp"`
}

type errorPayload struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
