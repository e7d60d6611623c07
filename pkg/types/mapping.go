package types

import "time"

// RuleSetScope distinguishes user-authored project rule sets from the
// read-only template-level rule sets seeded per process template.
type RuleSetScope string

const (
	RuleSetScopeProject  RuleSetScope = "project"
	RuleSetScopeTemplate RuleSetScope = "template"
)

// FieldMapping maps one Ardoq source field onto one Azure DevOps target field
// for a single work item type. Transform is an optional hint overriding the
// semantic inferred from the target field name.
type FieldMapping struct {
	SourceField string   `json:"sourceField"`
	TargetField string   `json:"targetField"`
	ItemType    ItemType `json:"itemType"`
	Transform   string   `json:"transform,omitempty"`
}

// MappingRuleSet is an ordered collection of field mappings. Rule order is
// significant: multi-value target fields concatenate values in rule order.
type MappingRuleSet struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Scope        RuleSetScope   `json:"scope"`
	ProjectID    string         `json:"projectId,omitempty"`
	TemplateName string         `json:"templateName,omitempty"`
	IsDefault    bool           `json:"isDefault"`
	Rules        []FieldMapping `json:"rules"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// RulesFor returns the rules applying to one item type, preserving order.
func (s *MappingRuleSet) RulesFor(t ItemType) []FieldMapping {
	out := make([]FieldMapping, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.ItemType == t {
			out = append(out, r)
		}
	}
	return out
}
