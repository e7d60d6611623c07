package types

import "strings"

// ItemType identifies a work item type that the sync engine creates in Azure
// DevOps. Ardoq components of any other type are structural containers and
// are never created as work items.
type ItemType string

const (
	ItemTypeEpic      ItemType = "Epic"
	ItemTypeFeature   ItemType = "Feature"
	ItemTypeUserStory ItemType = "UserStory"
)

// DisplayName returns the Azure DevOps work item type name for the item type.
func (t ItemType) DisplayName() string {
	if t == ItemTypeUserStory {
		return "User Story"
	}
	return string(t)
}

// FieldBag is the open-ended field set carried by a hierarchy node:
// description, priority, tags, acceptance criteria, risk, plus any custom
// fields defined in the Ardoq workspace model.
type FieldBag map[string]any

// Lookup resolves a field by name, supporting dot notation for nested maps
// ("customFields.risk"). It returns the value and whether a non-nil value was
// found.
func (f FieldBag) Lookup(path string) (any, bool) {
	if f == nil || path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(f)
	for _, part := range parts {
		m, ok := toStringMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// LookupFold is Lookup with a case-insensitive match on the final key. Only
// top-level keys are scanned; dot paths fall back to exact resolution first.
func (f FieldBag) LookupFold(name string) (any, bool) {
	if v, ok := f.Lookup(name); ok {
		return v, ok
	}
	for k, v := range f {
		if strings.EqualFold(k, name) && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case FieldBag:
		return m, true
	default:
		return nil, false
	}
}

// HierarchyNode is a read-only snapshot of one Ardoq component and its
// children, supplied at request time. The engine never mutates nodes.
type HierarchyNode struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Fields   FieldBag         `json:"fields,omitempty"`
	Children []*HierarchyNode `json:"children,omitempty"`
}

// WorkItemType reports the work item type this node maps to, and false for
// container nodes (Initiative, workspace folders) that are walked but never
// created.
func (n *HierarchyNode) WorkItemType() (ItemType, bool) {
	switch strings.ToLower(strings.ReplaceAll(n.Type, " ", "")) {
	case "epic":
		return ItemTypeEpic, true
	case "feature":
		return ItemTypeFeature, true
	case "userstory", "story":
		return ItemTypeUserStory, true
	default:
		return "", false
	}
}

// CountItems walks the tree and counts the nodes of the three processed item
// types, per type. Container nodes contribute nothing but are descended into.
func CountItems(roots []*HierarchyNode) (total, epics, features, stories int) {
	var walk func(n *HierarchyNode)
	walk = func(n *HierarchyNode) {
		if t, ok := n.WorkItemType(); ok {
			total++
			switch t {
			case ItemTypeEpic:
				epics++
			case ItemTypeFeature:
				features++
			case ItemTypeUserStory:
				stories++
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return total, epics, features, stories
}
