package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ardsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &types.SyncRun{
		ID:          "run-1",
		ProjectName: "Proj",
		Status:      types.RunStatusPending,
		Overwrite:   true,
		TotalItems:  4,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.SetRunStatus(ctx, "run-1", types.RunStatusInProgress))

	require.NoError(t, s.IncrementCounter(ctx, "run-1", types.CounterCreated, 1))
	require.NoError(t, s.IncrementCounter(ctx, "run-1", types.CounterCreated, 1))
	require.NoError(t, s.IncrementCounter(ctx, "run-1", types.CounterEpicsCreated, 1))

	finished := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.FinishRun(ctx, "run-1", types.RunStatusCompleted, "", finished, 1200))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.RunStatusCompleted, got.Status)
	assert.True(t, got.Overwrite)
	assert.Equal(t, 4, got.TotalItems)
	assert.Equal(t, 2, got.CreatedCount)
	assert.Equal(t, 1, got.EpicsCreated)
	assert.Equal(t, int64(1200), got.DurationMillis)
	require.NotNil(t, got.FinishedAt)
}

func TestIncrementCounterRejectsUnknownColumn(t *testing.T) {
	s := openTestStore(t)
	err := s.IncrementCounter(context.Background(), "run-1", "drop_table", 1)
	assert.Error(t, err)
}

func TestRunItemsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &types.SyncRun{
		ID: "run-2", ProjectName: "Proj", Status: types.RunStatusPending, StartedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.CreateRunItem(ctx, &types.SyncRunItem{
		ID: "item-1", RunID: "run-2", SourceID: "c1", Name: "Epic one",
		ItemType: types.ItemTypeEpic, Outcome: types.ItemOutcomeCreated,
		TargetID: 42, TargetURL: "https://dev.azure.com/org/x/42",
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.CreateRunItem(ctx, &types.SyncRunItem{
		ID: "item-2", RunID: "run-2", SourceID: "c2", Name: "Feature one",
		ItemType: types.ItemTypeFeature, Outcome: types.ItemOutcomeFailed,
		ErrorMessage: "boom", CreatedAt: time.Now().UTC().Add(time.Second),
	}))

	items, err := s.ListRunItems(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, types.ItemOutcomeCreated, items[0].Outcome)
	assert.Equal(t, 42, items[0].TargetID)
	assert.Equal(t, "boom", items[1].ErrorMessage)
}

func TestTemplateRuleSetsSeeded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Agile", "Scrum", "Basic"} {
		set, err := s.TemplateRuleSet(ctx, name)
		require.NoError(t, err)
		require.NotNil(t, set, name)
		assert.Equal(t, types.RuleSetScopeTemplate, set.Scope)
		assert.NotEmpty(t, set.Rules)
	}

	missing, err := s.TemplateRuleSet(ctx, "CMMI")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProjectRuleSetDefaultSwitching(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRuleSet(ctx, &types.MappingRuleSet{
		Name: "first", ProjectID: "Proj", IsDefault: true,
		Rules: []types.FieldMapping{{SourceField: "description", TargetField: "System.Description", ItemType: types.ItemTypeEpic}},
	})
	require.NoError(t, err)

	second, err := s.CreateRuleSet(ctx, &types.MappingRuleSet{
		Name: "second", ProjectID: "Proj",
		Rules: []types.FieldMapping{{SourceField: "tags", TargetField: "System.Tags", ItemType: types.ItemTypeEpic}},
	})
	require.NoError(t, err)

	def, err := s.DefaultRuleSet(ctx, "Proj")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, first.ID, def.ID)

	require.NoError(t, s.SetDefaultRuleSet(ctx, second.ID))
	def, err = s.DefaultRuleSet(ctx, "Proj")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, second.ID, def.ID)
}

func TestDeleteRuleSetRefusesTemplates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tmpl, err := s.TemplateRuleSet(ctx, "Agile")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Error(t, s.DeleteRuleSet(ctx, tmpl.ID))

	set, err := s.CreateRuleSet(ctx, &types.MappingRuleSet{
		Name: "scratch", ProjectID: "Proj",
		Rules: []types.FieldMapping{{SourceField: "a", TargetField: "b", ItemType: types.ItemTypeEpic}},
	})
	require.NoError(t, err)
	assert.NoError(t, s.DeleteRuleSet(ctx, set.ID))
}

func TestConfigActivation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateConfig(ctx, &types.PlatformConfig{
		Platform: types.PlatformAzureDevOps, Name: "prod",
		BaseURL: "https://dev.azure.com", Token: "pat-1", Organization: "org",
	})
	require.NoError(t, err)
	assert.True(t, first.IsActive, "first config becomes active")

	second, err := s.CreateConfig(ctx, &types.PlatformConfig{
		Platform: types.PlatformAzureDevOps, Name: "staging",
		BaseURL: "https://dev.azure.com", Token: "pat-2", Organization: "org",
	})
	require.NoError(t, err)
	assert.False(t, second.IsActive)

	require.NoError(t, s.ActivateConfig(ctx, second.ID))
	active, err := s.ActiveConfig(ctx, types.PlatformAzureDevOps)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	configs, err := s.ListConfigs(ctx, types.PlatformAzureDevOps)
	require.NoError(t, err)
	assert.Len(t, configs, 2)

	require.NoError(t, s.DeleteConfig(ctx, first.ID))
	assert.Error(t, s.DeleteConfig(ctx, first.ID))
}
