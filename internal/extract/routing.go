package extract

import "github.com/Guillaume-Lombardo/extractforms/internal/schema"

// fieldRouting splits schema fields into page-anchored and unanchored sets.
// Fields without an explicit page hint inherit the page of the nearest field
// (by schema order) that has one; only fields with no anchor at all stay
// unanchored and are requested from every chunk.
type fieldRouting struct {
	anchorPage map[string]int // key -> logical page
	unanchored []schema.Field
}

func routeFields(fields []schema.Field, maxLogicalPage int) fieldRouting {
	routing := fieldRouting{anchorPage: make(map[string]int, len(fields))}

	type anchor struct {
		index int
		page  int
	}
	var anchors []anchor
	for i, f := range fields {
		if f.Page >= 1 && f.Page <= maxLogicalPage {
			anchors = append(anchors, anchor{index: i, page: f.Page})
		}
	}

	for i, f := range fields {
		if f.Page >= 1 && f.Page <= maxLogicalPage {
			routing.anchorPage[f.Key] = f.Page
			continue
		}
		// Hints beyond the logical sequence count as absent.
		if len(anchors) == 0 {
			routing.unanchored = append(routing.unanchored, f)
			continue
		}
		nearest := anchors[0]
		for _, a := range anchors[1:] {
			if abs(a.index-i) < abs(nearest.index-i) {
				nearest = a
			}
		}
		routing.anchorPage[f.Key] = nearest.page
	}
	return routing
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
