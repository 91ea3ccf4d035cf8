package prefs

import "strings"

// Preference trees are nested map[string]any values addressed by
// ordered string paths (["ui","dataListView","roles"]). Helpers here
// never share map references between caller and tree: values crossing
// the boundary are cloned.

func getPath(tree map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	node := tree
	for i, seg := range path {
		v, ok := node[seg]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	return nil, false
}

// setPath writes value at path, creating intermediate maps. A non-map
// value sitting on an intermediate segment is replaced by a map.
func setPath(tree map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	node := tree
	for _, seg := range path[:len(path)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
	node[path[len(path)-1]] = value
}

// removePath deletes the value at path. Empty intermediate maps are
// left in place; they are harmless and keep the walk simple.
func removePath(tree map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	node := tree
	for _, seg := range path[:len(path)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			return false
		}
		node = next
	}
	last := path[len(path)-1]
	if _, ok := node[last]; !ok {
		return false
	}
	delete(node, last)
	return true
}

// cloneValue deep-copies JSON-compatible values (maps, slices,
// scalars).
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return t
	}
}

func cloneTree(tree map[string]any) map[string]any {
	if tree == nil {
		return make(map[string]any)
	}
	return cloneValue(tree).(map[string]any)
}

// flattenLeaves walks a partial tree and yields (path, value) for every
// leaf, so a partial update becomes independent per-path changes.
func flattenLeaves(partial map[string]any, prefix []string, visit func(path []string, value any)) {
	for k, v := range partial {
		path := append(append([]string{}, prefix...), k)
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flattenLeaves(m, path, visit)
			continue
		}
		visit(path, v)
	}
}

// joinPath is the canonical map key for a preference path.
func joinPath(path []string) string {
	return strings.Join(path, ".")
}
