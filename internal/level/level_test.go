package level

import "testing"

func TestComputeBreakpoints(t *testing.T) {
	table := []int64{0, 100, 300, 600}

	cases := []struct {
		cumulative int64
		want       int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{299, 1},
		{300, 2},
		{599, 2},
		{600, 3},
		{601, 3},
	}
	for _, tc := range cases {
		if got := Compute(tc.cumulative, table); got != tc.want {
			t.Fatalf("Compute(%d) = %d, want %d", tc.cumulative, got, tc.want)
		}
	}
}

func TestComputeClampsAtFinalIndex(t *testing.T) {
	table := []int64{0, 10, 20}
	if got := Compute(1<<60, table); got != len(table)-1 {
		t.Fatalf("expected clamp at %d, got %d", len(table)-1, got)
	}
}

func TestComputeMonotonic(t *testing.T) {
	prev := 0
	for amount := int64(0); amount <= 2_000_000; amount += 997 {
		got := Wealth(amount)
		if got < prev {
			t.Fatalf("level decreased from %d to %d at amount %d", prev, got, amount)
		}
		prev = got
	}
}

func TestComputeNegativeAmount(t *testing.T) {
	if got := Compute(-5, []int64{0, 10}); got != 0 {
		t.Fatalf("expected level 0 for negative amount, got %d", got)
	}
}

func TestThresholdTablesAscending(t *testing.T) {
	for name, table := range map[string][]int64{
		"wealth": WealthThresholds,
		"live":   LiveThresholds,
	} {
		if table[0] != 0 {
			t.Fatalf("%s table must start at 0", name)
		}
		for i := 1; i < len(table); i++ {
			if table[i] <= table[i-1] {
				t.Fatalf("%s table not ascending at index %d", name, i)
			}
		}
	}
}
