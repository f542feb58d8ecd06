package menu

// Node is a flat menu catalog entry. Nodes form a forest via ParentID; a nil
// ParentID marks a root. Permission is empty when the node is visible to any
// authenticated user in a compatible context.
type Node struct {
	ID                    int64  `json:"id"`
	ParentID              *int64 `json:"parent_id,omitempty"`
	Name                  string `json:"name"`
	Slug                  string `json:"slug"`
	Permission            string `json:"permission,omitempty"`
	Level                 int    `json:"level"`
	SortOrder             int    `json:"sort_order"`
	IsActive              bool   `json:"is_active"`
	IsVisible             bool   `json:"is_visible"`
	DevOnly               bool   `json:"dev_only"`
	CompanySpecific       bool   `json:"company_specific"`
	EstablishmentSpecific bool   `json:"establishment_specific"`
}

// TreeNode is a catalog entry with its kept children attached.
type TreeNode struct {
	Node
	Children []*TreeNode `json:"children"`
}
