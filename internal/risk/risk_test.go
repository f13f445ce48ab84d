package risk

import "testing"

func TestLevelAtLeast(t *testing.T) {
	cases := []struct {
		l, other Level
		want     bool
	}{
		{LevelLow, LevelLow, true},
		{LevelLow, LevelMedium, false},
		{LevelMedium, LevelLow, true},
		{LevelHigh, LevelCritical, false},
		{LevelCritical, LevelHigh, true},
		{LevelCritical, LevelCritical, true},
	}
	for _, c := range cases {
		if got := c.l.AtLeast(c.other); got != c.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", c.l, c.other, got, c.want)
		}
	}
}

func TestLevelMax(t *testing.T) {
	if got := LevelMedium.Max(LevelHigh); got != LevelHigh {
		t.Errorf("expected high, got %s", got)
	}
	if got := LevelCritical.Max(LevelLow); got != LevelCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestActionFor(t *testing.T) {
	cases := []struct {
		level Level
		want  Action
	}{
		{LevelLow, ActionAllow},
		{LevelMedium, ActionMonitor},
		{LevelHigh, ActionVerify},
		{LevelCritical, ActionBlock},
	}
	for _, c := range cases {
		if got := ActionFor(c.level); got != c.want {
			t.Errorf("ActionFor(%s) = %s, want %s", c.level, got, c.want)
		}
	}
}

func TestFlagged(t *testing.T) {
	for _, c := range []struct {
		level Level
		want  bool
	}{
		{LevelLow, false},
		{LevelMedium, false},
		{LevelHigh, true},
		{LevelCritical, true},
	} {
		r := &CombinedResult{Level: c.level}
		if r.Flagged() != c.want {
			t.Errorf("Flagged() for %s = %v, want %v", c.level, r.Flagged(), c.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-0.5) != 0 {
		t.Error("negative should clamp to 0")
	}
	if Clamp01(1.5) != 1 {
		t.Error("above one should clamp to 1")
	}
	if Clamp01(0.42) != 0.42 {
		t.Error("in-range value should pass through")
	}
}

func TestSourcesOrder(t *testing.T) {
	// Aggregation determinism depends on this exact order.
	want := []Source{SourceAccount, SourceTransaction, SourceLocation, SourceDevice, SourceRegional}
	if len(Sources) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(Sources))
	}
	for i, s := range want {
		if Sources[i] != s {
			t.Errorf("Sources[%d] = %s, want %s", i, Sources[i], s)
		}
	}
}
