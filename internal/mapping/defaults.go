package mapping

import "github.com/cloudmodeler/ardsync/pkg/types"

// Azure DevOps field reference names used by the built-in rules.
const (
	FieldTitle              = "System.Title"
	FieldDescription        = "System.Description"
	FieldTags               = "System.Tags"
	FieldPriority           = "Microsoft.VSTS.Common.Priority"
	FieldAcceptanceCriteria = "Microsoft.VSTS.Common.AcceptanceCriteria"
	FieldRisk               = "Microsoft.VSTS.Common.Risk"
	FieldStoryPoints        = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldStartDate          = "Microsoft.VSTS.Scheduling.StartDate"
	FieldTargetDate         = "Microsoft.VSTS.Scheduling.TargetDate"
)

// BuiltinRuleSet returns the hardcoded fallback rule set. It always exists,
// so rule set resolution can never fail outright.
func BuiltinRuleSet() *types.MappingRuleSet {
	return &types.MappingRuleSet{
		ID:    "builtin",
		Name:  "Built-in defaults",
		Scope: types.RuleSetScopeTemplate,
		Rules: []types.FieldMapping{
			{SourceField: "description", TargetField: FieldDescription, ItemType: types.ItemTypeEpic},
			{SourceField: "priority", TargetField: FieldPriority, ItemType: types.ItemTypeEpic},
			{SourceField: "tags", TargetField: FieldTags, ItemType: types.ItemTypeEpic},
			{SourceField: "startDate", TargetField: FieldStartDate, ItemType: types.ItemTypeEpic},
			{SourceField: "targetDate", TargetField: FieldTargetDate, ItemType: types.ItemTypeEpic},

			{SourceField: "description", TargetField: FieldDescription, ItemType: types.ItemTypeFeature},
			{SourceField: "priority", TargetField: FieldPriority, ItemType: types.ItemTypeFeature},
			{SourceField: "tags", TargetField: FieldTags, ItemType: types.ItemTypeFeature},

			{SourceField: "description", TargetField: FieldDescription, ItemType: types.ItemTypeUserStory},
			{SourceField: "acceptanceCriteria", TargetField: FieldAcceptanceCriteria, ItemType: types.ItemTypeUserStory},
			{SourceField: "priority", TargetField: FieldPriority, ItemType: types.ItemTypeUserStory},
			{SourceField: "risk", TargetField: FieldRisk, ItemType: types.ItemTypeUserStory},
			{SourceField: "storyPoints", TargetField: FieldStoryPoints, ItemType: types.ItemTypeUserStory},
			{SourceField: "tags", TargetField: FieldTags, ItemType: types.ItemTypeUserStory},
		},
	}
}

// alternateBags lists the nested bags probed when a source field is not a
// top-level key. Ardoq exports custom fields under a per-type bag.
var alternateBags = map[types.ItemType][]string{
	types.ItemTypeEpic:      {"customFields"},
	types.ItemTypeFeature:   {"customFields", "extendedFields"},
	types.ItemTypeUserStory: {"customFields"},
}

// fieldVariants maps a lowercased source field name to the alternative names
// seen across Ardoq workspace models. Checked last, after exact, bag, and
// case-insensitive lookups.
var fieldVariants = map[string][]string{
	"description":        {"desc", "text", "body"},
	"acceptancecriteria": {"acceptance_criteria", "acceptance criteria", "ac"},
	"priority":           {"prio", "importance"},
	"tags":               {"labels", "tag"},
	"risk":               {"risklevel", "risk_level"},
	"storypoints":        {"story_points", "points", "estimate"},
	"startdate":          {"start_date", "start"},
	"targetdate":         {"target_date", "due", "duedate", "end_date"},
	"purpose":            {"goal", "why"},
	"input":              {"inputs"},
	"output":             {"outputs", "definitionofdone", "dod"},
	"approach":           {"how", "solution"},
}
