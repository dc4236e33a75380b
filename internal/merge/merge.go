// Package merge implements the deep-merge rule shared by record
// enrichment and configuration-file merging.
package merge

// Maps recursively merges b into a and returns a new map. For every
// overlapping key, b wins unless both values are themselves
// map[string]interface{}, in which case they are merged recursively.
// Neither a nor b is mutated.
func Maps(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = cloneValue(v)
	}

	for k, bv := range b {
		av, exists := a[k]
		if exists {
			aMap, aOK := av.(map[string]interface{})
			bMap, bOK := bv.(map[string]interface{})
			if aOK && bOK {
				out[k] = Maps(aMap, bMap)
				continue
			}
		}
		out[k] = cloneValue(bv)
	}

	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return Maps(t, map[string]interface{}{})
	case []interface{}:
		cloned := make([]interface{}, len(t))
		for i, item := range t {
			cloned[i] = cloneValue(item)
		}
		return cloned
	default:
		return v
	}
}
