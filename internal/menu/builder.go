package menu

import (
	"sort"

	"github.com/proteamcare/access-engine/internal/authz"
)

// BuildTree converts the flat catalog into the forest visible to the user.
//
// A node is kept iff it is active and visible, its permission requirement is
// met (no requirement, granted, or system admin), its dev flag is satisfied,
// and its scoping flags are compatible with the context. Dev menus are only
// includable for a system admin in system scope; includeDev is forced false
// otherwise. A kept node whose parent was filtered out becomes a root, and a
// filtered node's subtree disappears only if every descendant is filtered
// too; kept descendants re-root.
//
// Assembly is a single pass over a map keyed by ID, so the output cannot
// contain cycles: each node is attached at most once, to its true parent.
// Output ordering is (level, sort_order, name) at every level and is stable
// across invocations for identical input.
func BuildTree(nodes []Node, granted authz.PermissionSet, user authz.UserInfo, scope authz.Context, includeDev bool) []*TreeNode {
	if !user.IsSystemAdmin || !scope.IsSystem() {
		includeDev = false
	}

	kept := make(map[int64]*TreeNode, len(nodes))
	order := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		if !keep(n, granted, user, scope, includeDev) {
			continue
		}
		kept[n.ID] = &TreeNode{Node: n, Children: []*TreeNode{}}
		order = append(order, n.ID)
	}

	var roots []*TreeNode
	for _, id := range order {
		node := kept[id]
		if node.ParentID != nil {
			if parent, ok := kept[*node.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	sortLevel(roots)
	for _, node := range kept {
		sortLevel(node.Children)
	}
	return roots
}

func keep(n Node, granted authz.PermissionSet, user authz.UserInfo, scope authz.Context, includeDev bool) bool {
	if !n.IsActive || !n.IsVisible {
		return false
	}
	if n.DevOnly && !includeDev {
		return false
	}
	if n.Permission != "" && !user.IsSystemAdmin && !granted.Has(n.Permission) {
		return false
	}
	if n.CompanySpecific && scope.Kind != authz.KindCompany && scope.Kind != authz.KindEstablishment {
		return false
	}
	if n.EstablishmentSpecific && scope.Kind != authz.KindEstablishment {
		return false
	}
	return true
}

func sortLevel(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
}
