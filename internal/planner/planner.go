// Package planner computes the initial slice layout and reconciles it with
// a loaded index (spec §4.6). It generalizes the chunk-size arithmetic in
// the teacher's internal/job-handlers.go (downloadWithProgress: chunk size
// = fileSize/connections, remainder folded into the last chunk) into the
// three named policies the spec requires, plus index reconciliation, which
// the teacher never does (it always re-slices from scratch).
package planner

import (
	"zoe/internal/policy"
	"zoe/internal/sliceset"
)

// autoTargetSliceSize is the "≈10MiB per slice" heuristic target for the
// Auto policy (spec §4.6).
const autoTargetSliceSize = 10 * 1024 * 1024

// autoSingleSliceCeiling is the "≤1MiB → 1 slice" heuristic threshold.
const autoSingleSliceCeiling = 1 * 1024 * 1024

// autoMaxSliceMultiplier caps Auto-derived slice count at threadNum*K.
const autoMaxSliceMultiplier = 4

// Plan computes the initial slice layout for a resource. total < 0 means
// the size is unknown, or acceptsRanges is false; either degenerates to a
// single open-ended slice (spec §4.6).
func Plan(total int64, acceptsRanges bool, p policy.SlicePolicy, policyValue int64, threadNum int) []sliceset.Slice {
	if total < 0 || !acceptsRanges {
		return []sliceset.Slice{{Begin: 0, End: -1, Status: sliceset.Pending}}
	}
	if total == 0 {
		return []sliceset.Slice{{Begin: 0, End: 0, Status: sliceset.Completed}}
	}

	var count int64
	switch p {
	case policy.FixedNum:
		count = policyValue
		if count < 1 {
			count = 1
		}
	case policy.FixedSize:
		size := policyValue
		if size < 1 {
			size = autoTargetSliceSize
		}
		// Every slice is exactly size bytes except the last, which is shorter.
		slices := make([]sliceset.Slice, 0, (total+size-1)/size)
		for pos := int64(0); pos < total; pos += size {
			end := pos + size
			if end > total {
				end = total
			}
			slices = append(slices, sliceset.Slice{Begin: pos, End: end, Status: sliceset.Pending})
		}
		return slices
	default: // Auto
		if total <= autoSingleSliceCeiling {
			count = 1
		} else {
			count = (total + autoTargetSliceSize - 1) / autoTargetSliceSize
			maxCount := int64(threadNum) * autoMaxSliceMultiplier
			if maxCount < 1 {
				maxCount = autoMaxSliceMultiplier
			}
			if count > maxCount {
				count = maxCount
			}
		}
	}
	if count < 1 {
		count = 1
	}
	return evenSlices(total, count)
}

func evenSlices(total, count int64) []sliceset.Slice {
	base := total / count
	remainder := total % count
	slices := make([]sliceset.Slice, 0, count)
	var pos int64
	for i := int64(0); i < count && pos < total; i++ {
		size := base
		if i == count-1 {
			size = total - pos // fold remainder into the last slice
		}
		if size <= 0 {
			continue
		}
		slices = append(slices, sliceset.Slice{Begin: pos, End: pos + size, Status: sliceset.Pending})
		pos += size
	}
	_ = remainder // folded into the last slice above rather than distributed
	return slices
}

// layoutMatches reports whether existing already reflects a fresh Plan()
// call for the same parameters — same count and same boundaries — meaning
// it can be adopted verbatim (spec §4.6 "adopted verbatim").
func layoutMatches(existing []sliceset.Slice, fresh []sliceset.Slice) bool {
	if len(existing) != len(fresh) {
		return false
	}
	for i := range existing {
		if existing[i].Begin != fresh[i].Begin || existing[i].End != fresh[i].End {
			return false
		}
	}
	return true
}

// Reconcile adopts a loaded slice layout when it matches what Plan would
// produce today, preserving per-slice Downloaded. Otherwise it applies the
// uncompleted_slice_save_policy: AlwaysDiscard restarts incomplete slices
// from scratch under a fresh Plan; SaveExceptFailed preserves completed and
// active-but-not-failed slices and re-slices only the remaining gap (spec
// §4.6, and the Recommended resolution to the Open Question in spec §9).
func Reconcile(existing []sliceset.Slice, total int64, acceptsRanges bool, p policy.SlicePolicy, policyValue int64, threadNum int, savePolicy policy.UncompletedSliceSavePolicy) []sliceset.Slice {
	fresh := Plan(total, acceptsRanges, p, policyValue, threadNum)
	if layoutMatches(existing, fresh) {
		out := make([]sliceset.Slice, len(fresh))
		for i := range fresh {
			out[i] = fresh[i]
			out[i].Downloaded = existing[i].Downloaded
			out[i].Status = existing[i].Status
			if out[i].Status != sliceset.Completed {
				out[i].Status = sliceset.Pending
			}
		}
		return out
	}

	if savePolicy == policy.AlwaysDiscard || total < 0 {
		return fresh
	}

	// SaveExceptFailed: keep completed and non-failed-incomplete slices,
	// re-slice the union of gaps left behind (including any Failed slice's
	// full range) by the current policy.
	var kept []sliceset.Slice
	var holes []struct{ begin, end int64 }
	for _, sl := range existing {
		if sl.Status == sliceset.Failed || sl.Open() {
			holes = append(holes, struct{ begin, end int64 }{sl.Begin, sl.End})
			continue
		}
		// A slice persisted mid-flight (Active/Canceled from a crash or a
		// prior Stop) resumes as Pending from its saved offset; only a
		// slice that finished stays Completed.
		if sl.Status != sliceset.Completed {
			sl.Status = sliceset.Pending
		}
		kept = append(kept, sl)
	}
	if len(holes) == 0 {
		return kept
	}
	result := append([]sliceset.Slice{}, kept...)
	for _, h := range holes {
		span := h.end - h.begin
		if span <= 0 {
			continue
		}
		sub := Plan(span, true, p, policyValue, threadNum)
		for i := range sub {
			sub[i].Begin += h.begin
			sub[i].End += h.begin
		}
		result = append(result, sub...)
	}
	sortByBegin(result)
	return result
}

func sortByBegin(s []sliceset.Slice) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].Begin > s[j].Begin; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
