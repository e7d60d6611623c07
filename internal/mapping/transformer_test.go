package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

func epicNode(fields types.FieldBag) *types.HierarchyNode {
	return &types.HierarchyNode{ID: "c1", Name: "Billing platform", Type: "Epic", Fields: fields}
}

func TestApplyEmitsTitleFirstAndOnce(t *testing.T) {
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(types.FieldBag{"description": "text"}), types.ItemTypeEpic, BuiltinRuleSet(), "")

	require.NotEmpty(t, doc)
	assert.Equal(t, "add", doc[0].Op)
	assert.Equal(t, "/fields/"+FieldTitle, doc[0].Path)
	assert.Equal(t, "Billing platform", doc[0].Value)

	titles := 0
	for _, op := range doc {
		if op.Path == "/fields/"+FieldTitle {
			titles++
		}
	}
	assert.Equal(t, 1, titles)
}

func TestApplySkipsRulesWithoutValues(t *testing.T) {
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(nil), types.ItemTypeEpic, BuiltinRuleSet(), "")

	// Only the unconditional title survives an empty field bag.
	require.Len(t, doc, 1)
	assert.Equal(t, "/fields/"+FieldTitle, doc[0].Path)
}

func TestApplyParentRelation(t *testing.T) {
	tr := NewTransformer(zap.NewNop())

	doc := tr.Apply(epicNode(nil), types.ItemTypeEpic, BuiltinRuleSet(), "https://dev.azure.com/org/_apis/wit/workItems/7")
	last := doc[len(doc)-1]
	assert.Equal(t, "/relations/-", last.Path)
	rel, ok := last.Value.(types.ParentRelation)
	require.True(t, ok)
	assert.Equal(t, types.HierarchyReverse, rel.Rel)
	assert.Equal(t, "https://dev.azure.com/org/_apis/wit/workItems/7", rel.URL)

	doc = tr.Apply(epicNode(nil), types.ItemTypeEpic, BuiltinRuleSet(), "")
	for _, op := range doc {
		assert.NotEqual(t, "/relations/-", op.Path)
	}
}

func TestPriorityTransforms(t *testing.T) {
	tr := NewTransformer(zap.NewNop())

	assert.Equal(t, 2, tr.transformPriority("n", 2))
	assert.Equal(t, 2, tr.transformPriority("n", float64(2)))
	assert.Equal(t, 1, tr.transformPriority("n", "Critical"))
	assert.Equal(t, 2, tr.transformPriority("n", "high"))
	assert.Equal(t, 3, tr.transformPriority("n", "Med"))
	assert.Equal(t, 4, tr.transformPriority("n", "LOW"))
	assert.Equal(t, 2, tr.transformPriority("n", "P2"))

	// Unrecognized and out-of-range values fall back to 3.
	assert.Equal(t, 3, tr.transformPriority("n", "urgent!!"))
	assert.Equal(t, 3, tr.transformPriority("n", 9))
	assert.Equal(t, 3, tr.transformPriority("n", ""))
}

func TestPriorityThroughApply(t *testing.T) {
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(types.FieldBag{"priority": "Med"}), types.ItemTypeEpic, BuiltinRuleSet(), "")

	var got any
	for _, op := range doc {
		if op.Path == "/fields/"+FieldPriority {
			got = op.Value
		}
	}
	assert.Equal(t, 3, got)
}

func TestMultiRuleTagAccumulation(t *testing.T) {
	set := &types.MappingRuleSet{
		ID: "s1",
		Rules: []types.FieldMapping{
			{SourceField: "tags", TargetField: FieldTags, ItemType: types.ItemTypeEpic},
			{SourceField: "category", TargetField: FieldTags, ItemType: types.ItemTypeEpic},
		},
	}
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(types.FieldBag{
		"tags":     []any{"core", "payments"},
		"category": "infrastructure",
	}), types.ItemTypeEpic, set, "")

	var tagOps []types.PatchOperation
	for _, op := range doc {
		if op.Path == "/fields/"+FieldTags {
			tagOps = append(tagOps, op)
		}
	}
	require.Len(t, tagOps, 1)
	assert.Equal(t, "core, payments; infrastructure", tagOps[0].Value)
}

func TestApplyRuleTargetingTitleIsSkipped(t *testing.T) {
	set := &types.MappingRuleSet{
		ID: "s1",
		Rules: []types.FieldMapping{
			{SourceField: "shortName", TargetField: FieldTitle, ItemType: types.ItemTypeEpic},
		},
	}
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(types.FieldBag{"shortName": "BILL"}), types.ItemTypeEpic, set, "")

	// The node name stays the one and only title operation.
	require.Len(t, doc, 1)
	assert.Equal(t, "/fields/"+FieldTitle, doc[0].Path)
	assert.Equal(t, "Billing platform", doc[0].Value)
}

func TestApplyDuplicateTargetKeepsFirstMapping(t *testing.T) {
	set := &types.MappingRuleSet{
		ID: "s1",
		Rules: []types.FieldMapping{
			{SourceField: "priority", TargetField: FieldPriority, ItemType: types.ItemTypeEpic},
			{SourceField: "urgency", TargetField: FieldPriority, ItemType: types.ItemTypeEpic},
		},
	}
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(types.FieldBag{
		"priority": 1,
		"urgency":  4,
	}), types.ItemTypeEpic, set, "")

	var priorityOps []types.PatchOperation
	for _, op := range doc {
		if op.Path == "/fields/"+FieldPriority {
			priorityOps = append(priorityOps, op)
		}
	}
	require.Len(t, priorityOps, 1)
	assert.Equal(t, 1, priorityOps[0].Value)
}

func TestApplyMultiValueOpKeepsRulePosition(t *testing.T) {
	set := &types.MappingRuleSet{
		ID: "s1",
		Rules: []types.FieldMapping{
			{SourceField: "description", TargetField: FieldDescription, ItemType: types.ItemTypeEpic},
			{SourceField: "tags", TargetField: FieldTags, ItemType: types.ItemTypeEpic},
			{SourceField: "priority", TargetField: FieldPriority, ItemType: types.ItemTypeEpic},
			{SourceField: "category", TargetField: FieldTags, ItemType: types.ItemTypeEpic},
		},
	}
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(epicNode(types.FieldBag{
		"description": "text",
		"tags":        []any{"core"},
		"priority":    2,
		"category":    "infrastructure",
	}), types.ItemTypeEpic, set, "")

	require.Len(t, doc, 4)
	assert.Equal(t, "/fields/"+FieldTitle, doc[0].Path)
	assert.Equal(t, "/fields/"+FieldDescription, doc[1].Path)
	// The tag op sits where its first contributing rule ran and holds the
	// fully accumulated value.
	assert.Equal(t, "/fields/"+FieldTags, doc[2].Path)
	assert.Equal(t, "core; infrastructure", doc[2].Value)
	assert.Equal(t, "/fields/"+FieldPriority, doc[3].Path)
}

func TestFeatureDescriptionSections(t *testing.T) {
	node := &types.HierarchyNode{
		ID:   "f1",
		Name: "Invoice export",
		Type: "Feature",
		Fields: types.FieldBag{
			"description": "Exports invoices as PDF.",
			"purpose":     "Let finance archive invoices.",
			"output":      "Signed PDFs in blob storage.",
			"approach":    "Render via headless worker.",
		},
	}
	tr := NewTransformer(zap.NewNop())
	doc := tr.Apply(node, types.ItemTypeFeature, BuiltinRuleSet(), "")

	var desc string
	for _, op := range doc {
		if op.Path == "/fields/"+FieldDescription {
			desc = op.Value.(string)
		}
	}
	expected := "Exports invoices as PDF." +
		"\n\nPurpose: Let finance archive invoices." +
		"\n\nOutput (Definition of Done): Signed PDFs in blob storage." +
		"\n\nApproach: Render via headless worker."
	assert.Equal(t, expected, desc)
	assert.NotContains(t, desc, "Input:")
}

func TestDateNormalization(t *testing.T) {
	assert.Equal(t, "2024-03-01T00:00:00Z", transformDate("2024-03-01"))
	assert.Equal(t, "2023-11-14T22:13:20Z", transformDate(float64(1700000000)))
	assert.Equal(t, "2023-11-14T22:13:20Z", transformDate(int64(1700000000000)))
	// Unparseable strings pass through unchanged.
	assert.Equal(t, "soonish", transformDate("soonish"))
}

func TestRiskMapping(t *testing.T) {
	assert.Equal(t, "High", transformRisk(1))
	assert.Equal(t, "Medium", transformRisk(float64(2)))
	assert.Equal(t, "Low", transformRisk(3))
	assert.Equal(t, "unknown", transformRisk("unknown"))
	assert.Equal(t, "5", transformRisk(5))
}

func TestSourceFieldFallbackLookup(t *testing.T) {
	tr := NewTransformer(zap.NewNop())

	// Nested custom-field bag.
	node := epicNode(types.FieldBag{"customFields": map[string]any{"priority": "high"}})
	assert.Equal(t, "high", tr.resolveSource(node, types.ItemTypeEpic, "priority"))

	// Case-insensitive key.
	node = epicNode(types.FieldBag{"Description": "overview text"})
	assert.Equal(t, "overview text", tr.resolveSource(node, types.ItemTypeEpic, "description"))

	// Known name variant.
	node = epicNode(types.FieldBag{"desc": "short"})
	assert.Equal(t, "short", tr.resolveSource(node, types.ItemTypeEpic, "description"))

	// Empty values count as absent.
	node = epicNode(types.FieldBag{"description": "  "})
	assert.Nil(t, tr.resolveSource(node, types.ItemTypeEpic, "description"))
}

func TestDefaultTransformEncodesStructuredValues(t *testing.T) {
	v, err := transformDefault(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, v.(string))

	v, err = transformDefault("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}
