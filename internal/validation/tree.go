package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// validateTree checks that the nodes form a rooted tree: unique ids, resolved
// parent/child references, one parent per node, no cycles. Nodes the root
// cannot reach are reported as warnings.
func validateTree(cfg *schema.WorkflowConfig) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	byID := make(map[string]*schema.Node, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		if n == nil || n.ID == "" {
			continue // reported by semantic
		}
		if _, exists := byID[n.ID]; exists {
			result.AddError(fmt.Sprintf("nodes[%d].id", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		byID[n.ID] = n
	}

	// claimedBy[child] = parent listing it in child_ids.
	claimedBy := make(map[string]string, len(byID))
	for i, n := range cfg.Nodes {
		if n == nil || byID[n.ID] != n {
			continue
		}
		seen := make(map[string]bool, len(n.ChildIDs))
		for j, child := range n.ChildIDs {
			path := fmt.Sprintf("nodes[%d].child_ids[%d]", i, j)
			c, ok := byID[child]
			switch {
			case !ok:
				result.AddError(path, schema.ErrCodeConfiguration,
					fmt.Sprintf("references non-existent node %q", child))
				continue
			case seen[child]:
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("child %q listed twice", child))
				continue
			}
			seen[child] = true
			if prev, claimed := claimedBy[child]; claimed {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("node %q has two parents: %q and %q", child, prev, n.ID))
				continue
			}
			claimedBy[child] = n.ID
			if c.ParentID != "" && c.ParentID != n.ID {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("node %q declares parent %q but is listed by %q", child, c.ParentID, n.ID))
			}
		}
	}

	for i, n := range cfg.Nodes {
		if n == nil || n.ParentID == "" || byID[n.ID] != n {
			continue
		}
		if _, ok := byID[n.ParentID]; !ok {
			result.AddError(fmt.Sprintf("nodes[%d].parent_id", i), schema.ErrCodeConfiguration,
				fmt.Sprintf("references non-existent node %q", n.ParentID))
		}
	}

	if findCycle(byID) {
		result.AddError("nodes", schema.ErrCodeCycleDetected, "workflow tree contains a cycle")
		return result
	}

	root, err := cfg.ResolveRoot()
	if err != nil {
		addErr(result, "root_id", err)
		return result
	}

	reachable := make(map[string]bool, len(byID))
	reachable[root] = true
	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range byID[id].ChildIDs {
			if _, ok := byID[child]; ok && !reachable[child] {
				reachable[child] = true
				queue = append(queue, child)
			}
		}
	}

	unreachable := make([]string, 0)
	for id := range byID {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
	}
	sort.Strings(unreachable)
	for _, id := range unreachable {
		result.AddWarning(fmt.Sprintf("nodes[%s]", id), schema.ErrCodeValidation,
			fmt.Sprintf("node %q is unreachable from root %q", id, root))
	}

	return result
}

// findCycle runs Kahn's algorithm over parent->child edges.
func findCycle(byID map[string]*schema.Node) bool {
	inDegree := make(map[string]int, len(byID))
	for id := range byID {
		inDegree[id] += 0
		seen := make(map[string]bool)
		for _, child := range byID[id].ChildIDs {
			if _, ok := byID[child]; ok && !seen[child] {
				seen[child] = true
				inDegree[child]++
			}
		}
	}

	queue := make([]string, 0, len(byID))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		seen := make(map[string]bool)
		for _, child := range byID[id].ChildIDs {
			if _, ok := byID[child]; !ok || seen[child] {
				continue
			}
			seen[child] = true
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return visited != len(byID)
}
