package replaystore

import (
	"fmt"
	"sort"
)

// mergeSave deduplicates incoming against existing plus itself, assigns
// monotone sequence numbers starting at nextSeq, and validates/backfills
// each accepted record's projection hash. It is the dedup+seq-assignment
// core shared by every backend.
func mergeSave(existing []Record, nextSeq uint64, incoming []Record) ([]Record, uint64, SaveResult, error) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.dedupKey()] = struct{}{}
	}

	merged := make([]Record, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)

	var result SaveResult
	for _, r := range incoming {
		key := r.dedupKey()
		if _, dup := seen[key]; dup {
			result.Duplicates++
			result.DuplicateKeys = append(result.DuplicateKeys, key)
			continue
		}
		seen[key] = struct{}{}

		expected, err := ComputeProjectionHash(r)
		if err != nil {
			return existing, nextSeq, result, fmt.Errorf("replaystore: compute projection hash: %w", err)
		}
		if r.ProjectionHash == "" {
			r.ProjectionHash = expected
		} else if r.ProjectionHash != expected {
			return existing, nextSeq, result, fmt.Errorf("replaystore: projection hash mismatch for slot=%d signature=%s", r.Slot, r.Signature)
		}

		r.Seq = nextSeq
		nextSeq++
		merged = append(merged, r)
		result.Inserted++
	}

	return merged, nextSeq, result, nil
}

// applyRetention applies the four-stage retention policy in documented
// order, returning the surviving records. now is the reference instant
// for TTL eviction.
func applyRetention(records []Record, retention Retention, now int64) []Record {
	out := records

	if retention.TTLMs > 0 {
		cutoff := now - retention.TTLMs
		filtered := out[:0:0]
		for _, r := range out {
			if r.TimestampMs >= cutoff {
				filtered = append(filtered, r)
			}
		}
		out = filtered
	}

	if retention.MaxEventsPerTask > 0 {
		out = keepNewestPerGroup(out, retention.MaxEventsPerTask, func(r Record) string { return "task:" + r.TaskID })
	}
	if retention.MaxEventsPerDispute > 0 {
		out = keepNewestPerGroup(out, retention.MaxEventsPerDispute, func(r Record) string {
			if r.DisputeID == "" {
				return "" // ungrouped; not subject to the per-dispute cap
			}
			return "dispute:" + r.DisputeID
		})
	}
	if retention.MaxEventsTotal > 0 && len(out) > retention.MaxEventsTotal {
		sorted := append([]Record(nil), out...)
		sortByRecencyDesc(sorted)
		out = sorted[:retention.MaxEventsTotal]
	}

	return out
}

// keepNewestPerGroup keeps, for every non-empty group key, only the
// newest `limit` records by (slot, seq) descending. Records whose group
// key is empty (not a member of the grouped dimension) are always kept.
func keepNewestPerGroup(records []Record, limit int, groupKey func(Record) string) []Record {
	byGroup := make(map[string][]Record)
	var ungrouped []Record
	for _, r := range records {
		key := groupKey(r)
		if key == "" {
			ungrouped = append(ungrouped, r)
			continue
		}
		byGroup[key] = append(byGroup[key], r)
	}

	out := append([]Record(nil), ungrouped...)
	for _, group := range byGroup {
		sortByRecencyDesc(group)
		if len(group) > limit {
			group = group[:limit]
		}
		out = append(out, group...)
	}
	return out
}

func sortByRecencyDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Slot != records[j].Slot {
			return records[i].Slot > records[j].Slot
		}
		return records[i].Seq > records[j].Seq
	})
}

// sortForQuery orders records ascending by (slot, sourceEventSequence),
// the documented result order.
func sortForQuery(records []Record) []Record {
	out := append([]Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].SourceEventSequence < out[j].SourceEventSequence
	})
	return out
}

func filterAndPage(records []Record, filter Filter) []Record {
	matched := make([]Record, 0, len(records))
	for _, r := range sortForQuery(records) {
		if filter.matches(r) {
			matched = append(matched, r)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}
