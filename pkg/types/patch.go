package types

// PatchOperation is one JSON-patch operation in a work item creation request.
// Azure DevOps accepts field values under /fields/{refName} and link
// additions under /relations/-.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// PatchDocument is the ordered operation list sent as
// application/json-patch+json. The title operation is always first.
type PatchDocument []PatchOperation

// AddField appends an add operation for a work item field.
func (d PatchDocument) AddField(refName string, value any) PatchDocument {
	return append(d, PatchOperation{Op: "add", Path: "/fields/" + refName, Value: value})
}

// WorkItemRef identifies a work item created in Azure DevOps. URL is the
// API resource URL, the only form the link API accepts as a relation target;
// BrowseURL is the page a person opens.
type WorkItemRef struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	BrowseURL string `json:"browseUrl"`
}

// ParentRelation is the payload of a parent-link relation operation.
type ParentRelation struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// HierarchyReverse is the Azure DevOps link type naming an item's parent.
const HierarchyReverse = "System.LinkTypes.Hierarchy-Reverse"

// AddParent appends the relation operation linking the new item to its
// parent work item.
func (d PatchDocument) AddParent(parentURL string) PatchDocument {
	return append(d, PatchOperation{
		Op:   "add",
		Path: "/relations/-",
		Value: ParentRelation{
			Rel: HierarchyReverse,
			URL: parentURL,
		},
	})
}
