package scoreboard

import "sort"

// Diff compares the previously committed snapshot against a freshly fetched
// one and returns the discrete changes, or nil when nothing changed.
//
// Ordering: events are grouped by entity in the order entities appear in
// cur. Entities new to cur yield one created event; entities present in
// both yield one field_changed event per differing field, fields in sorted
// name order. Entities missing from cur are appended last as removed
// events, in the order they appeared in prev.
//
// Diff(s, s) is always empty; unchanged input produces no events.
func Diff(prev, cur *Snapshot, detectedAt int64) []ChangeEvent {
	var events []ChangeEvent

	for _, e := range cur.Entities {
		old := prev.Get(e.ID)
		if old == nil {
			events = append(events, ChangeEvent{
				EntityID:   e.ID,
				Kind:       KindCreated,
				New:        EncodeFields(e.Fields),
				DetectedAt: detectedAt,
			})
			continue
		}
		events = append(events, diffFields(old, &e, detectedAt)...)
	}

	if prev != nil {
		for _, e := range prev.Entities {
			if cur.Get(e.ID) == nil {
				events = append(events, ChangeEvent{
					EntityID:   e.ID,
					Kind:       KindRemoved,
					Prev:       EncodeFields(e.Fields),
					DetectedAt: detectedAt,
				})
			}
		}
	}

	return events
}

// diffFields emits one field_changed event per differing field between two
// versions of the same entity. A field present on only one side is compared
// against the empty string.
func diffFields(old, cur *Entity, detectedAt int64) []ChangeEvent {
	names := make(map[string]struct{}, len(cur.Fields))
	for k := range old.Fields {
		names[k] = struct{}{}
	}
	for k := range cur.Fields {
		names[k] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var events []ChangeEvent
	for _, name := range sorted {
		before, after := old.Fields[name], cur.Fields[name]
		if before == after {
			continue
		}
		events = append(events, ChangeEvent{
			EntityID:   cur.ID,
			Kind:       KindFieldChanged,
			Field:      name,
			Prev:       before,
			New:        after,
			DetectedAt: detectedAt,
		})
	}
	return events
}
