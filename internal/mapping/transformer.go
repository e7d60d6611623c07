package mapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// tagSeparator joins values accumulated into a multi-value field across
// rules. Azure DevOps splits System.Tags on "; ".
const tagSeparator = "; "

// Transformer turns one hierarchy node into the JSON-patch document that
// creates its work item. A broken rule is logged and skipped; it never stops
// the remaining rules for the node.
type Transformer struct {
	logger *zap.Logger
}

// NewTransformer creates a new field transformer.
func NewTransformer(logger *zap.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Apply builds the patch for node as itemType under the given rule set.
// The title is always the first operation and comes from the node name
// alone; rules targeting the title are skipped. Every other single-value
// target gets at most one operation, first rule wins. A multi-value target
// accumulates across rules into one operation at the position of its first
// contributing rule. parentURL, when non-empty, adds the parent relation as
// the final operation.
func (t *Transformer) Apply(node *types.HierarchyNode, itemType types.ItemType, set *types.MappingRuleSet, parentURL string) types.PatchDocument {
	doc := types.PatchDocument{}.AddField(FieldTitle, node.Name)
	seen := map[string]bool{}

	type accumulated struct {
		field  string
		index  int
		values []string
	}
	var multi []*accumulated
	findMulti := func(field string) *accumulated {
		for _, a := range multi {
			if strings.EqualFold(a.field, field) {
				return a
			}
		}
		return nil
	}

	for _, rule := range set.RulesFor(itemType) {
		if strings.EqualFold(rule.TargetField, FieldTitle) {
			t.logger.Warn("rule targets the title field, skipping",
				zap.String("source_field", rule.SourceField),
				zap.String("node", node.ID))
			continue
		}

		raw := t.resolveSource(node, itemType, rule.SourceField)
		if raw == nil {
			continue
		}

		value, err := t.transformValue(node, itemType, rule, raw)
		if err != nil {
			t.logger.Warn("field transform failed, skipping rule",
				zap.String("source_field", rule.SourceField),
				zap.String("target_field", rule.TargetField),
				zap.String("node", node.ID),
				zap.Error(err))
			continue
		}
		if value == nil {
			continue
		}

		if isMultiValue(rule.TargetField) {
			a := findMulti(rule.TargetField)
			if a == nil {
				doc = doc.AddField(rule.TargetField, nil)
				a = &accumulated{field: rule.TargetField, index: len(doc) - 1}
				multi = append(multi, a)
			}
			a.values = append(a.values, coerceString(value))
			continue
		}

		key := strings.ToLower(rule.TargetField)
		if seen[key] {
			t.logger.Warn("duplicate target field, keeping first mapping",
				zap.String("source_field", rule.SourceField),
				zap.String("target_field", rule.TargetField),
				zap.String("node", node.ID))
			continue
		}
		seen[key] = true
		doc = doc.AddField(rule.TargetField, value)
	}

	for _, a := range multi {
		doc[a.index].Value = strings.Join(a.values, tagSeparator)
	}

	if parentURL != "" {
		doc = doc.AddParent(parentURL)
	}
	return doc
}

// resolveSource finds the value for one source field: exact dot-path lookup,
// then the type's alternate bags, then a case-insensitive key match, then
// known name variants. Empty values count as absent.
func (t *Transformer) resolveSource(node *types.HierarchyNode, itemType types.ItemType, field string) any {
	if v, ok := node.Fields.Lookup(field); ok && !isEmpty(v) {
		return v
	}
	for _, bag := range alternateBags[itemType] {
		if v, ok := node.Fields.Lookup(bag + "." + field); ok && !isEmpty(v) {
			return v
		}
	}
	if v, ok := node.Fields.LookupFold(field); ok && !isEmpty(v) {
		return v
	}
	for _, variant := range fieldVariants[strings.ToLower(field)] {
		if v, ok := node.Fields.LookupFold(variant); ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

// transformValue applies the target-field semantic to a resolved value.
func (t *Transformer) transformValue(node *types.HierarchyNode, itemType types.ItemType, rule types.FieldMapping, raw any) (any, error) {
	switch semanticFor(rule, itemType) {
	case semanticDescription:
		if itemType == types.ItemTypeFeature {
			return t.featureDescription(node, itemType, raw), nil
		}
		return coerceString(raw), nil
	case semanticPriority:
		return t.transformPriority(node.ID, raw), nil
	case semanticTags:
		return transformTags(raw), nil
	case semanticDate:
		return transformDate(raw), nil
	case semanticRisk:
		return transformRisk(raw), nil
	case semanticIdentity:
		return coerceString(raw), nil
	default:
		return transformDefault(raw)
	}
}

type semantic int

const (
	semanticDefault semantic = iota
	semanticDescription
	semanticPriority
	semanticTags
	semanticDate
	semanticRisk
	semanticIdentity
)

// semanticFor infers the transform from the target field name unless the
// rule carries an explicit transform hint.
func semanticFor(rule types.FieldMapping, itemType types.ItemType) semantic {
	switch strings.ToLower(rule.Transform) {
	case "priority":
		return semanticPriority
	case "tags":
		return semanticTags
	case "date":
		return semanticDate
	case "risk":
		return semanticRisk
	case "identity":
		return semanticIdentity
	case "description":
		return semanticDescription
	}
	field := rule.TargetField
	switch {
	case strings.EqualFold(field, FieldDescription):
		return semanticDescription
	case strings.Contains(field, "Priority"):
		return semanticPriority
	case isMultiValue(field):
		return semanticTags
	case strings.Contains(field, "Date"):
		return semanticDate
	case strings.Contains(field, "Risk") && itemType == types.ItemTypeUserStory:
		return semanticRisk
	case strings.Contains(field, "ChangedBy"), strings.Contains(field, "AssignedTo"):
		return semanticIdentity
	default:
		return semanticDefault
	}
}

// isMultiValue reports whether a target field accumulates values across
// rules instead of overwriting.
func isMultiValue(field string) bool {
	return strings.EqualFold(field, FieldTags) || strings.HasSuffix(field, ".Tags")
}

// featureDescription concatenates the base description with the labeled
// sections a Feature carries. Sections with no value are omitted.
func (t *Transformer) featureDescription(node *types.HierarchyNode, itemType types.ItemType, raw any) string {
	parts := make([]string, 0, 5)
	if base := coerceString(raw); base != "" {
		parts = append(parts, base)
	}
	sections := []struct {
		label string
		field string
	}{
		{"Purpose:", "purpose"},
		{"Input:", "input"},
		{"Output (Definition of Done):", "output"},
		{"Approach:", "approach"},
	}
	for _, s := range sections {
		v := t.resolveSource(node, itemType, s.field)
		if v == nil {
			continue
		}
		if text := coerceString(v); text != "" {
			parts = append(parts, s.label+" "+text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// transformPriority normalizes a priority to the numeric 1-4 scale,
// 1 highest. Unrecognized input maps to 3 with a warning, never an error.
func (t *Transformer) transformPriority(nodeID string, raw any) int {
	const defaultPriority = 3
	if n, ok := toInt(raw); ok {
		if n >= 1 && n <= 4 {
			return n
		}
		t.logger.Warn("priority out of range, using default",
			zap.Int("value", n), zap.String("node", nodeID))
		return defaultPriority
	}
	s := strings.ToLower(strings.TrimSpace(coerceString(raw)))
	switch s {
	case "critical", "highest", "blocker":
		return 1
	case "high":
		return 2
	case "medium", "med", "normal":
		return 3
	case "low", "lowest":
		return 4
	}
	if digits := firstDigits(s); digits != "" {
		if n, err := strconv.Atoi(digits); err == nil && n >= 1 && n <= 4 {
			return n
		}
	}
	t.logger.Warn("unrecognized priority value, using default",
		zap.String("value", s), zap.String("node", nodeID))
	return defaultPriority
}

func firstDigits(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

// transformTags renders a tag value: arrays join with ", ", scalars coerce
// to string.
func transformTags(raw any) string {
	if list, ok := raw.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			parts = append(parts, coerceString(v))
		}
		return strings.Join(parts, ", ")
	}
	if list, ok := raw.([]string); ok {
		return strings.Join(list, ", ")
	}
	return coerceString(raw)
}

// transformDate normalizes dates to an ISO-8601 timestamp string.
// Unparseable strings pass through unchanged.
func transformDate(raw any) any {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return epochToISO(int64(v))
	case int:
		return epochToISO(int64(v))
	case int64:
		return epochToISO(v)
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006/01/02", "01/02/2006"} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC().Format(time.RFC3339)
			}
		}
		return v
	default:
		return coerceString(raw)
	}
}

// epochToISO accepts seconds or milliseconds since the epoch.
func epochToISO(n int64) string {
	if n > 1e12 {
		return time.UnixMilli(n).UTC().Format(time.RFC3339)
	}
	return time.Unix(n, 0).UTC().Format(time.RFC3339)
}

// transformRisk maps the numeric 1/2/3 risk scale to the Azure DevOps
// High/Medium/Low values.
func transformRisk(raw any) string {
	n, ok := toInt(raw)
	if !ok {
		return coerceString(raw)
	}
	switch n {
	case 1:
		return "High"
	case 2:
		return "Medium"
	case 3:
		return "Low"
	default:
		return coerceString(raw)
	}
}

// transformDefault JSON-encodes structured values and passes primitives
// through.
func transformDefault(raw any) (any, error) {
	switch raw.(type) {
	case map[string]any, []any, types.FieldBag:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field value: %w", err)
		}
		return string(b), nil
	default:
		return raw, nil
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isEmpty(v any) bool {
	switch e := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(e) == ""
	case []any:
		return len(e) == 0
	case map[string]any:
		return len(e) == 0
	default:
		return false
	}
}
