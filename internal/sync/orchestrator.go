package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/internal/mapping"
	"github.com/cloudmodeler/ardsync/pkg/types"
)

// WorkItemClient is the target platform surface the orchestrator consumes.
type WorkItemClient interface {
	CreateWorkItem(ctx context.Context, project string, itemType types.ItemType, patch types.PatchDocument) (*types.WorkItemRef, error)
	DeleteWorkItems(ctx context.Context, project string, ids []int, permanent bool) error
	QueryWorkItemIDs(ctx context.Context, project string) ([]int, error)
	GetProjectProcess(ctx context.Context, project string) (string, error)
}

// RuleResolver resolves the mapping rule set for one run. It never fails.
type RuleResolver interface {
	Resolve(ctx context.Context, explicitID, templateName, project string) *types.MappingRuleSet
}

// Request carries everything one sync run needs.
type Request struct {
	Project          string
	SourceConfigID   string
	TargetConfigID   string
	Overwrite        bool
	MappingRuleSetID string
	ProcessTemplate  string
	Hierarchy        []*types.HierarchyNode
}

// Orchestrator drives one sync run: optional overwrite deletion, then a
// depth-first walk creating work items parent-before-child. One item's
// failure skips its descendants but never its siblings; only deletion
// failures and cancellation are fatal.
type Orchestrator struct {
	client      WorkItemClient
	resolver    RuleResolver
	transformer *mapping.Transformer
	deleter     *ChunkedDeleter
	history     *Recorder
	logger      *zap.Logger
}

// NewOrchestrator creates a new sync orchestrator.
func NewOrchestrator(client WorkItemClient, resolver RuleResolver, transformer *mapping.Transformer, history *Recorder, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client:      client,
		resolver:    resolver,
		transformer: transformer,
		deleter:     NewChunkedDeleter(client, logger),
		history:     history,
		logger:      logger,
	}
}

// tally tracks attempted-item outcomes for one item type.
type tally struct {
	created int
	failed  int
}

type runState struct {
	byType map[types.ItemType]*tally
}

func newRunState() *runState {
	return &runState{byType: map[types.ItemType]*tally{
		types.ItemTypeEpic:      {},
		types.ItemTypeFeature:   {},
		types.ItemTypeUserStory: {},
	}}
}

func (s *runState) counts(t types.ItemType) types.TypeCounts {
	ty := s.byType[t]
	return types.TypeCounts{Total: ty.created + ty.failed, Created: ty.created, Failed: ty.failed}
}

// Run executes one sync run to completion, streaming progress to sink. The
// stream always ends with exactly one terminal event.
func (o *Orchestrator) Run(ctx context.Context, req *Request, sink EventSink) {
	started := time.Now().UTC()
	total, _, _, _ := types.CountItems(req.Hierarchy)

	run := &types.SyncRun{
		ID:             uuid.NewString(),
		SourceConfigID: req.SourceConfigID,
		TargetConfigID: req.TargetConfigID,
		ProjectName:    req.Project,
		Status:         types.RunStatusPending,
		Overwrite:      req.Overwrite,
		TotalItems:     total,
		StartedAt:      started,
	}
	o.history.CreateRun(ctx, run)
	o.history.Audit(ctx, run.ID, "sync_started",
		fmt.Sprintf("project=%s total_items=%d overwrite=%t", req.Project, total, req.Overwrite))

	o.logger.Info("sync run started",
		zap.String("run_id", run.ID),
		zap.String("project", req.Project),
		zap.Int("total_items", total),
		zap.Bool("overwrite", req.Overwrite))

	if req.Overwrite {
		sink.Emit(EventOverwriteStarted, messagePayload{
			Message:   "Overwrite mode: removing existing work items",
			Timestamp: nowISO(),
		})
		ids, err := o.client.QueryWorkItemIDs(ctx, req.Project)
		if err != nil {
			wrapped := fmt.Errorf("failed to query existing work items: %w", err)
			sink.Emit(EventOverwriteError, overwriteErrorPayload{
				Error:     wrapped.Error(),
				Message:   "Overwrite deletion failed, sync aborted",
				Timestamp: nowISO(),
			})
			o.finish(ctx, run, sink, types.RunStatusFailed, wrapped)
			return
		}
		if _, err := o.deleter.Delete(ctx, req.Project, run.ID, ids, sink, o.history); err != nil {
			o.finish(ctx, run, sink, types.RunStatusFailed, err)
			return
		}
	}

	o.history.SetStatus(ctx, run.ID, types.RunStatusInProgress)

	set := o.resolver.Resolve(ctx, req.MappingRuleSetID, req.ProcessTemplate, req.Project)

	state := newRunState()
	for _, root := range req.Hierarchy {
		if ctx.Err() != nil {
			break
		}
		o.walk(ctx, run, req.Project, set, root, nil, state, sink)
	}
	// walk backs out quietly on a done context, so re-check here: a run that
	// did not finish the full hierarchy must not report completed.
	if err := ctx.Err(); err != nil {
		o.finish(ctx, run, sink, types.RunStatusCancelled, err)
		return
	}

	o.finishCompleted(ctx, run, total, state, sink)
}

// walk creates the work item for node and recurses into its children with
// the new item as parent. Container nodes pass the current parent through.
// On creation failure the node's entire subtree is skipped.
func (o *Orchestrator) walk(ctx context.Context, run *types.SyncRun, project string, set *types.MappingRuleSet, node *types.HierarchyNode, parent *types.WorkItemRef, state *runState, sink EventSink) {
	if ctx.Err() != nil {
		return
	}

	itemType, ok := node.WorkItemType()
	if !ok {
		for _, child := range node.Children {
			o.walk(ctx, run, project, set, child, parent, state, sink)
		}
		return
	}

	parentURL := ""
	if parent != nil {
		parentURL = parent.URL
	}
	patch := o.transformer.Apply(node, itemType, set, parentURL)

	ref, err := o.client.CreateWorkItem(ctx, project, itemType, patch)
	if err != nil {
		state.byType[itemType].failed++
		o.logger.Warn("work item creation failed, skipping subtree",
			zap.String("run_id", run.ID),
			zap.String("node", node.ID),
			zap.String("item_type", string(itemType)),
			zap.Error(err))
		o.recordItem(ctx, run.ID, node, itemType, types.ItemOutcomeFailed, nil, err)
		o.incrementFailed(ctx, run.ID, itemType)
		sink.Emit(FailedEvent(itemType), itemFailedPayload{
			ArdoqID:   node.ID,
			Name:      node.Name,
			Error:     err.Error(),
			Timestamp: nowISO(),
		})
		return
	}

	state.byType[itemType].created++
	o.recordItem(ctx, run.ID, node, itemType, types.ItemOutcomeCreated, ref, nil)
	o.incrementCreated(ctx, run.ID, itemType)
	sink.Emit(CreatedEvent(itemType), itemCreatedPayload{
		ArdoqID:        node.ID,
		Name:           node.Name,
		AzureDevOpsID:  ref.ID,
		AzureDevOpsURL: ref.BrowseURL,
		Timestamp:      nowISO(),
	})

	for _, child := range node.Children {
		o.walk(ctx, run, project, set, child, ref, state, sink)
	}
}

func (o *Orchestrator) recordItem(ctx context.Context, runID string, node *types.HierarchyNode, itemType types.ItemType, outcome types.ItemOutcome, ref *types.WorkItemRef, itemErr error) {
	item := &types.SyncRunItem{
		ID:        uuid.NewString(),
		RunID:     runID,
		SourceID:  node.ID,
		Name:      node.Name,
		ItemType:  itemType,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if ref != nil {
		item.TargetID = ref.ID
		item.TargetURL = ref.BrowseURL
	}
	if itemErr != nil {
		item.ErrorMessage = itemErr.Error()
	}
	o.history.RecordItem(ctx, item)
}

func (o *Orchestrator) incrementCreated(ctx context.Context, runID string, t types.ItemType) {
	o.history.Increment(ctx, runID, types.CounterCreated, 1)
	switch t {
	case types.ItemTypeEpic:
		o.history.Increment(ctx, runID, types.CounterEpicsCreated, 1)
	case types.ItemTypeFeature:
		o.history.Increment(ctx, runID, types.CounterFeaturesCreated, 1)
	case types.ItemTypeUserStory:
		o.history.Increment(ctx, runID, types.CounterStoriesCreated, 1)
	}
}

func (o *Orchestrator) incrementFailed(ctx context.Context, runID string, t types.ItemType) {
	o.history.Increment(ctx, runID, types.CounterFailed, 1)
	switch t {
	case types.ItemTypeEpic:
		o.history.Increment(ctx, runID, types.CounterEpicsFailed, 1)
	case types.ItemTypeFeature:
		o.history.Increment(ctx, runID, types.CounterFeaturesFailed, 1)
	case types.ItemTypeUserStory:
		o.history.Increment(ctx, runID, types.CounterStoriesFailed, 1)
	}
}

// finishCompleted finalizes a run that walked the full hierarchy. Partial
// item failures still complete the run.
func (o *Orchestrator) finishCompleted(ctx context.Context, run *types.SyncRun, total int, state *runState, sink EventSink) {
	epics := state.counts(types.ItemTypeEpic)
	features := state.counts(types.ItemTypeFeature)
	stories := state.counts(types.ItemTypeUserStory)
	summary := types.SyncSummary{
		Total:       total,
		Created:     epics.Created + features.Created + stories.Created,
		Failed:      epics.Failed + features.Failed + stories.Failed,
		Epics:       epics,
		Features:    features,
		UserStories: stories,
	}

	finishedAt := time.Now().UTC()
	o.history.Finish(ctx, run.ID, types.RunStatusCompleted, "",
		finishedAt, finishedAt.Sub(run.StartedAt).Milliseconds())
	o.history.Audit(ctx, run.ID, "sync_completed",
		fmt.Sprintf("created=%d failed=%d", summary.Created, summary.Failed))

	o.logger.Info("sync run completed",
		zap.String("run_id", run.ID),
		zap.Int("created", summary.Created),
		zap.Int("failed", summary.Failed))

	sink.Emit(EventSyncComplete, completePayload{Summary: summary, Timestamp: nowISO()})
}

// finish finalizes a run that ended on a fatal error and emits the terminal
// error event. History writes use a detached context so a cancelled request
// still leaves a terminal record.
func (o *Orchestrator) finish(ctx context.Context, run *types.SyncRun, sink EventSink, status types.RunStatus, fatal error) {
	ctx = context.WithoutCancel(ctx)
	finishedAt := time.Now().UTC()
	o.history.Finish(ctx, run.ID, status, fatal.Error(),
		finishedAt, finishedAt.Sub(run.StartedAt).Milliseconds())
	o.history.Audit(ctx, run.ID, "sync_"+string(status), fatal.Error())

	o.logger.Error("sync run terminated",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Error(fatal))

	sink.Emit(EventSyncError, errorPayload{Error: fatal.Error(), Timestamp: nowISO()})
}
