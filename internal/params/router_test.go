package params

import (
	"math"
	"testing"
	"time"

	"github.com/cbegin/synthhost-go/internal/control"
)

const cutoff = control.ParamID(1)

func newTestRouter(t *testing.T, specs ...Spec) *Router {
	t.Helper()
	r, err := NewRouter(48000, specs...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRampReachesTarget(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 500, Min: 0, Max: 20000})
	r.Set(cutoff, 1000, 10*time.Millisecond)

	// 10ms at 48kHz = 480 frames; advance in 64-frame blocks.
	for f := 0; f < 480; f += 64 {
		r.Advance(64, nil)
	}
	if got := r.Value(cutoff); got != 1000 {
		t.Fatalf("value after full ramp = %g, want 1000", got)
	}
}

func TestRampIsContinuous(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 0, Min: 0, Max: 20000})
	const block = 64
	// Max per-block delta implied by a 10ms ramp from 0 to 1000.
	maxDelta := 1000.0 / 480.0 * block

	r.Set(cutoff, 1000, 10*time.Millisecond)
	prev := r.Value(cutoff)
	for i := 0; i < 20; i++ {
		if i == 4 {
			// Retarget mid-ramp; continuity must hold across the splice.
			r.Set(cutoff, 200, 10*time.Millisecond)
			maxDelta = math.Abs(200-prev) / 480.0 * block
		}
		r.Advance(block, nil)
		cur := r.Value(cutoff)
		if d := math.Abs(cur - prev); d > maxDelta+1e-9 {
			t.Fatalf("block %d: jump of %g exceeds per-block bound %g", i, d, maxDelta)
		}
		prev = cur
	}
}

func TestRetargetStartsFromCurrentValue(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 0, Min: 0, Max: 20000})
	r.Set(cutoff, 1000, 10*time.Millisecond)

	// Advance 5ms = 240 frames: halfway to 1000.
	r.Advance(240, nil)
	mid := r.Value(cutoff)
	if math.Abs(mid-500) > 1 {
		t.Fatalf("mid-ramp value = %g, want ~500", mid)
	}

	r.Set(cutoff, 200, 10*time.Millisecond)
	r.Advance(240, nil)
	at5ms := r.Value(cutoff)

	// Second ramp runs from ~500 toward 200: after half its length the
	// value must sit between those, never back near 1000 or 0.
	want := mid + (200-mid)/2
	if math.Abs(at5ms-want) > 1 {
		t.Fatalf("retargeted ramp at halfway = %g, want ~%g (from %g toward 200)", at5ms, want, mid)
	}
}

func TestZeroRampSnapsInOneBlock(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 10, Min: 0, Max: 100})
	r.Set(cutoff, 90, 0)
	r.Advance(64, nil)
	if got := r.Value(cutoff); got != 90 {
		t.Fatalf("zero-ramp value = %g, want 90", got)
	}
}

func TestTargetClampedToRange(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 10, Min: 0, Max: 100})
	r.Set(cutoff, 500, 0)
	r.Advance(1, nil)
	if got := r.Value(cutoff); got != 100 {
		t.Fatalf("over-range target ramped to %g, want clamp at 100", got)
	}
}

func TestUnknownIDIsNoOp(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 10, Min: 0, Max: 100})
	if r.Set(control.ParamID(99), 50, 0) {
		t.Fatal("unknown id should report false")
	}
	r.Advance(64, func(control.ParamID, float64, float64, int, bool) {
		t.Fatal("no parameter should be ramping")
	})
}

func TestSampleAccurateReportsIncrement(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "gain", Initial: 0, Min: 0, Max: 1, SampleAccurate: true})
	r.Set(cutoff, 1, 10*time.Millisecond) // 480 frames

	var gotValue, gotInc float64
	var gotFrames int
	var gotSA bool
	calls := 0
	r.Advance(64, func(id control.ParamID, value, inc float64, frames int, sa bool) {
		calls++
		gotValue, gotInc, gotFrames, gotSA = value, inc, frames, sa
	})
	if calls != 1 {
		t.Fatalf("apply called %d times, want 1", calls)
	}
	if !gotSA {
		t.Fatal("sample-accurate flag not reported")
	}
	if gotValue != 0 {
		t.Fatalf("sample-accurate start value = %g, want pre-block 0", gotValue)
	}
	wantInc := 1.0 / 480.0
	if math.Abs(gotInc-wantInc) > 1e-12 {
		t.Fatalf("per-frame increment = %g, want %g", gotInc, wantInc)
	}
	if gotFrames != 64 {
		t.Fatalf("covered frames = %d, want the whole 64-frame block", gotFrames)
	}
}

func TestRampEndingMidBlockStopsAtTarget(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "gain", Initial: 0, Min: 0, Max: 1, SampleAccurate: true})
	r.Set(cutoff, 1, 10*time.Millisecond) // 480 frames, inside one 512-frame block

	r.Advance(512, func(id control.ParamID, value, inc float64, frames int, sa bool) {
		if frames != 480 {
			t.Fatalf("covered frames = %d, want 480 (ramp length, not block length)", frames)
		}
		if end := value + inc*float64(frames); math.Abs(end-1) > 1e-12 {
			t.Fatalf("segment end = %g, want the target 1", end)
		}
		if over := value + inc*512; over <= 1 {
			// Sanity on the scenario: running the increment across the
			// whole block would overshoot.
			t.Fatalf("scenario degenerate: full-block extrapolation %g does not overshoot", over)
		}
	})
	if got := r.Value(cutoff); got != 1 {
		t.Fatalf("value after mid-block ramp end = %g, want 1", got)
	}

	// The next block has nothing left to report.
	r.Advance(512, func(control.ParamID, float64, float64, int, bool) {
		t.Fatal("completed ramp reported again")
	})
}

func TestBlockRateReportsPostBlockValue(t *testing.T) {
	r := newTestRouter(t, Spec{ID: cutoff, Name: "cutoff", Initial: 0, Min: 0, Max: 1000})
	r.Set(cutoff, 480, 10*time.Millisecond) // inc = 1 per frame

	r.Advance(64, func(id control.ParamID, value, inc float64, frames int, sa bool) {
		if sa {
			t.Fatal("block-rate parameter flagged sample-accurate")
		}
		if inc != 0 {
			t.Fatalf("block-rate increment = %g, want 0", inc)
		}
		if math.Abs(value-64) > 1e-9 {
			t.Fatalf("post-block value = %g, want 64", value)
		}
	})
}

func TestConfigurationErrors(t *testing.T) {
	cases := []struct {
		name  string
		specs []Spec
	}{
		{"duplicate id", []Spec{
			{ID: 1, Name: "a", Min: 0, Max: 1},
			{ID: 1, Name: "b", Min: 0, Max: 1},
		}},
		{"empty name", []Spec{{ID: 1, Min: 0, Max: 1}}},
		{"min above max", []Spec{{ID: 1, Name: "a", Min: 2, Max: 1}}},
		{"initial out of range", []Spec{{ID: 1, Name: "a", Initial: 5, Min: 0, Max: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRouter(48000, tc.specs...); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
