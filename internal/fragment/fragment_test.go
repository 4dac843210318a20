package fragment

import "testing"

func TestSplitScenario(t *testing.T) {
	frags, err := Split(75000, 30000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	want := []int64{30000, 30000, 15000}
	if len(frags) != len(want) {
		t.Fatalf("len(frags) = %d, want %d", len(frags), len(want))
	}
	for i, f := range frags {
		if f.Index != i {
			t.Errorf("frags[%d].Index = %d", i, f.Index)
		}
		if f.Duration() != want[i] {
			t.Errorf("frags[%d].Duration() = %d, want %d", i, f.Duration(), want[i])
		}
	}
}

func TestSplitZeroDuration(t *testing.T) {
	frags, err := Split(0, 30000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(frags) != 0 {
		t.Errorf("Split(0) returned %d fragments, want 0", len(frags))
	}
}

func TestSplitInvalid(t *testing.T) {
	if _, err := Split(1000, 0); err == nil {
		t.Error("Split with zero window should return error")
	}
	if _, err := Split(1000, -5); err == nil {
		t.Error("Split with negative window should return error")
	}
	if _, err := Split(-1, 1000); err == nil {
		t.Error("Split with negative duration should return error")
	}
}

func TestSplitPartition(t *testing.T) {
	windows := []int64{1, 7, 1000, 30000}
	totals := []int64{1, 6, 7, 8, 999, 1000, 1001, 29999, 30000, 30001, 75000, 90000, 3600001}

	for _, w := range windows {
		for _, total := range totals {
			frags, err := Split(total, w)
			if err != nil {
				t.Fatalf("Split(%d, %d) error = %v", total, w, err)
			}

			if len(frags) != Count(total, w) {
				t.Errorf("Split(%d, %d): %d fragments, want ceil = %d", total, w, len(frags), Count(total, w))
			}

			// Contiguous, ordered, no gaps or overlaps, covering [0, total)
			var cursor int64
			for i, f := range frags {
				if f.Index != i {
					t.Fatalf("Split(%d, %d): frags[%d].Index = %d", total, w, i, f.Index)
				}
				if f.StartMillis != cursor {
					t.Fatalf("Split(%d, %d): frags[%d] starts at %d, want %d", total, w, i, f.StartMillis, cursor)
				}
				if f.Duration() <= 0 || f.Duration() > w {
					t.Fatalf("Split(%d, %d): frags[%d] duration %d out of (0, %d]", total, w, i, f.Duration(), w)
				}
				if i < len(frags)-1 && f.Duration() != w {
					t.Fatalf("Split(%d, %d): non-final frags[%d] duration %d, want %d", total, w, i, f.Duration(), w)
				}
				cursor = f.EndMillis
			}
			if cursor != total {
				t.Errorf("Split(%d, %d): covered up to %d, want %d", total, w, cursor, total)
			}

			last := frags[len(frags)-1]
			wantLast := total - int64(len(frags)-1)*w
			if last.Duration() != wantLast {
				t.Errorf("Split(%d, %d): last duration %d, want %d", total, w, last.Duration(), wantLast)
			}
		}
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		total, window int64
		want          int
	}{
		{0, 30000, 0},
		{1, 30000, 1},
		{30000, 30000, 1},
		{30001, 30000, 2},
		{75000, 30000, 3},
		{90000, 30000, 3},
		{1000, 0, 0},
	}
	for _, tt := range tests {
		if got := Count(tt.total, tt.window); got != tt.want {
			t.Errorf("Count(%d, %d) = %d, want %d", tt.total, tt.window, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	f := Fragment{Index: 7}
	if got := f.Name(".wav"); got != "fragment_0007.wav" {
		t.Errorf("Name() = %q, want %q", got, "fragment_0007.wav")
	}
}
