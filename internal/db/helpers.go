package db

import "encoding/json"

// encodeSlotIDSet marshals a slot-id set to the jsonb array representation
// stored in buckets.baseline_slot_ids / prev_slot_ids. A nil slice still
// encodes to "[]", matching the spec's "empty set counts as initialized"
// rule — callers that need the NULL/uninitialized state must not call this
// and instead leave the column untouched.
func encodeSlotIDSet(ids []string) []byte {
	if ids == nil {
		ids = []string{}
	}
	raw, _ := json.Marshal(ids)
	return raw
}

// decodeSlotIDSet unmarshals a jsonb slot-id array. A nil/empty input
// (SQL NULL) returns a nil slice, the "uninitialized" marker.
func decodeSlotIDSet(raw []byte) []string {
	if raw == nil {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}
