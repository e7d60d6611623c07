package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// recordedEvent captures one emitted event for assertions.
type recordedEvent struct {
	event   string
	payload any
}

type recordingSink struct {
	events []recordedEvent
}

func (s *recordingSink) Emit(event string, payload any) {
	s.events = append(s.events, recordedEvent{event: event, payload: payload})
}

func (s *recordingSink) names() []string {
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.event
	}
	return out
}

func (s *recordingSink) byName(event string) []recordedEvent {
	var out []recordedEvent
	for _, e := range s.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeRunStore records history writes in memory. failAll makes every write
// fail, for the never-propagates contract.
type fakeRunStore struct {
	failAll  bool
	runs     map[string]*types.SyncRun
	statuses []types.RunStatus
	counters map[types.RunCounter]int
	items    []*types.SyncRunItem
	audits   []string
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:     map[string]*types.SyncRun{},
		counters: map[types.RunCounter]int{},
	}
}

func (f *fakeRunStore) fail() error {
	if f.failAll {
		return errors.New("store down")
	}
	return nil
}

func (f *fakeRunStore) CreateRun(_ context.Context, run *types.SyncRun) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.runs[run.ID] = run
	f.statuses = append(f.statuses, run.Status)
	return nil
}

func (f *fakeRunStore) SetRunStatus(_ context.Context, _ string, status types.RunStatus) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRunStore) FinishRun(_ context.Context, _ string, status types.RunStatus, _ string, _ time.Time, _ int64) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRunStore) IncrementCounter(_ context.Context, _ string, counter types.RunCounter, delta int) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.counters[counter] += delta
	return nil
}

func (f *fakeRunStore) CreateRunItem(_ context.Context, item *types.SyncRunItem) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeRunStore) CreateAuditEntry(_ context.Context, _ string, operation, _ string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.audits = append(f.audits, operation)
	return nil
}

// fakeWorkItemClient is a scriptable target platform.
type fakeWorkItemClient struct {
	nextID      int
	created     []types.ItemType
	patches     []types.PatchDocument
	failTypes   map[types.ItemType]bool
	failNames   map[string]bool
	existingIDs []int
	queryErr    error
	deleteCalls [][]int
	deleteErrAt int    // 1-based batch index to fail at, 0 = never
	cancelAfter int    // creations before onCancel fires, 0 = never
	onCancel    func() // typically a context.CancelFunc
}

func newFakeClient() *fakeWorkItemClient {
	return &fakeWorkItemClient{
		failTypes: map[types.ItemType]bool{},
		failNames: map[string]bool{},
	}
}

func (f *fakeWorkItemClient) CreateWorkItem(_ context.Context, _ string, itemType types.ItemType, patch types.PatchDocument) (*types.WorkItemRef, error) {
	name, _ := patch[0].Value.(string)
	if f.failTypes[itemType] || f.failNames[name] {
		return nil, fmt.Errorf("creation rejected for %s", name)
	}
	f.nextID++
	f.created = append(f.created, itemType)
	f.patches = append(f.patches, patch)
	if f.onCancel != nil && len(f.created) == f.cancelAfter {
		f.onCancel()
	}
	return &types.WorkItemRef{
		ID:        f.nextID,
		URL:       fmt.Sprintf("https://dev.azure.com/org/proj/_apis/wit/workItems/%d", f.nextID),
		BrowseURL: fmt.Sprintf("https://dev.azure.com/org/proj/_workitems/edit/%d", f.nextID),
	}, nil
}

func (f *fakeWorkItemClient) DeleteWorkItems(_ context.Context, _ string, ids []int, _ bool) error {
	f.deleteCalls = append(f.deleteCalls, ids)
	if f.deleteErrAt > 0 && len(f.deleteCalls) == f.deleteErrAt {
		return errors.New("delete rejected")
	}
	return nil
}

func (f *fakeWorkItemClient) QueryWorkItemIDs(context.Context, string) ([]int, error) {
	return f.existingIDs, f.queryErr
}

func (f *fakeWorkItemClient) GetProjectProcess(context.Context, string) (string, error) {
	return "Agile", nil
}

// builtinResolver always resolves to a fixed rule set.
type builtinResolver struct {
	set *types.MappingRuleSet
}

func (r *builtinResolver) Resolve(context.Context, string, string, string) *types.MappingRuleSet {
	return r.set
}

func intSeq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
