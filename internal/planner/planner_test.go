package planner

import (
	"testing"

	"zoe/internal/policy"
	"zoe/internal/sliceset"
)

func TestPlanUnknownSizeIsSingleOpenSlice(t *testing.T) {
	slices := Plan(-1, true, policy.Auto, 0, 4)
	if len(slices) != 1 || !slices[0].Open() {
		t.Fatalf("Plan(-1, ...) = %+v, want one open-ended slice", slices)
	}
}

func TestPlanNoRangeSupportIsSingleOpenSlice(t *testing.T) {
	slices := Plan(1000, false, policy.FixedNum, 4, 4)
	if len(slices) != 1 || !slices[0].Open() {
		t.Fatalf("Plan with acceptsRanges=false = %+v, want one open-ended slice", slices)
	}
}

func TestPlanZeroSizeIsCompleted(t *testing.T) {
	slices := Plan(0, true, policy.Auto, 0, 4)
	if len(slices) != 1 || slices[0].Status != sliceset.Completed {
		t.Fatalf("Plan(0, ...) = %+v, want one Completed slice", slices)
	}
}

func TestPlanFixedNum(t *testing.T) {
	slices := Plan(1000, true, policy.FixedNum, 4, 1)
	if len(slices) != 4 {
		t.Fatalf("len(slices) = %d, want 4", len(slices))
	}
	assertCoversTotal(t, slices, 1000)
}

func TestPlanFixedSize(t *testing.T) {
	slices := Plan(1000, true, policy.FixedSize, 300, 1)
	if len(slices) != 4 { // 300,300,300,100
		t.Fatalf("len(slices) = %d, want 4", len(slices))
	}
	if slices[3].End-slices[3].Begin != 100 {
		t.Errorf("last slice size = %d, want 100", slices[3].End-slices[3].Begin)
	}
	assertCoversTotal(t, slices, 1000)
}

func TestPlanAutoSmallFileIsOneSlice(t *testing.T) {
	slices := Plan(512*1024, true, policy.Auto, 0, 8)
	if len(slices) != 1 {
		t.Fatalf("len(slices) = %d, want 1 for a small file", len(slices))
	}
}

func TestPlanAutoCapsAtThreadMultiplier(t *testing.T) {
	// 1GiB at ~10MiB/slice would naively want ~100 slices; threadNum=2
	// should cap it at 2*autoMaxSliceMultiplier.
	slices := Plan(1<<30, true, policy.Auto, 0, 2)
	if len(slices) > 2*autoMaxSliceMultiplier {
		t.Errorf("len(slices) = %d, want <= %d", len(slices), 2*autoMaxSliceMultiplier)
	}
	assertCoversTotal(t, slices, 1<<30)
}

func assertCoversTotal(t *testing.T, slices []sliceset.Slice, total int64) {
	t.Helper()
	var pos int64
	for i, sl := range slices {
		if sl.Begin != pos {
			t.Fatalf("slice %d begins at %d, want %d", i, sl.Begin, pos)
		}
		pos = sl.End
	}
	if pos != total {
		t.Fatalf("slices cover up to %d, want %d", pos, total)
	}
}

func TestReconcileAdoptsMatchingLayoutVerbatim(t *testing.T) {
	existing := Plan(1000, true, policy.FixedNum, 4, 1)
	existing[0].Downloaded = existing[0].End - existing[0].Begin
	existing[0].Status = sliceset.Completed
	existing[1].Downloaded = 50
	existing[1].Status = sliceset.Active

	out := Reconcile(existing, 1000, true, policy.FixedNum, 4, 1, policy.AlwaysDiscard)
	if len(out) != len(existing) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(existing))
	}
	if out[0].Status != sliceset.Completed || out[0].Downloaded != existing[0].Downloaded {
		t.Errorf("completed slice not preserved: %+v", out[0])
	}
	if out[1].Status != sliceset.Pending || out[1].Downloaded != 50 {
		t.Errorf("active slice should resume as Pending with its offset kept: %+v", out[1])
	}
}

func TestReconcileAlwaysDiscardOnMismatch(t *testing.T) {
	existing := Plan(1000, true, policy.FixedNum, 4, 1)
	existing[0].Downloaded = 250
	existing[0].Status = sliceset.Completed

	// Ask for a different layout (FixedNum=2 instead of 4): no longer matches.
	out := Reconcile(existing, 1000, true, policy.FixedNum, 2, 1, policy.AlwaysDiscard)
	fresh := Plan(1000, true, policy.FixedNum, 2, 1)
	if len(out) != len(fresh) {
		t.Fatalf("AlwaysDiscard should re-plan from scratch, got %d slices want %d", len(out), len(fresh))
	}
	for _, sl := range out {
		if sl.Downloaded != 0 {
			t.Errorf("re-planned slice should start at 0 downloaded, got %+v", sl)
		}
	}
}

func TestReconcileSaveExceptFailedKeepsCompletedAndReslicesHoles(t *testing.T) {
	existing := Plan(1000, true, policy.FixedNum, 4, 1)
	existing[0].Status = sliceset.Completed
	existing[0].Downloaded = existing[0].End - existing[0].Begin
	existing[1].Status = sliceset.Failed
	existing[2].Status = sliceset.Active
	existing[2].Downloaded = 10
	existing[3].Status = sliceset.Completed
	existing[3].Downloaded = existing[3].End - existing[3].Begin

	// Change the policy value so the layout no longer matches verbatim.
	out := Reconcile(existing, 1000, true, policy.FixedNum, 2, 1, policy.SaveExceptFailed)

	var sawCompleted int
	for _, sl := range out {
		if sl.Status == sliceset.Completed {
			sawCompleted++
		}
	}
	if sawCompleted != 2 {
		t.Errorf("expected the 2 completed slices to survive, saw %d", sawCompleted)
	}
	assertCoversTotal(t, sortedCopy(out), 1000)
}

func sortedCopy(s []sliceset.Slice) []sliceset.Slice {
	out := append([]sliceset.Slice{}, s...)
	sortByBegin(out)
	return out
}
