// Package level derives wealth and live levels from cumulative lifetime
// totals. Levels are never stored as independent truth: they are recomputed
// from the totals against fixed ascending threshold tables.
package level

// WealthThresholds maps cumulative coins spent to wealth level. Index is the
// level, value is the minimum cumulative spend. The curve is kept as a
// literal table for compatibility with existing user levels.
var WealthThresholds = []int64{
	0,
	100,
	300,
	600,
	1_000,
	1_800,
	3_000,
	5_000,
	8_000,
	12_000,
	18_000,
	26_000,
	38_000,
	55_000,
	78_000,
	110_000,
	155_000,
	215_000,
	300_000,
	420_000,
	580_000,
	800_000,
	1_100_000,
	1_500_000,
	2_050_000,
	2_800_000,
	3_800_000,
	5_100_000,
	6_900_000,
	9_300_000,
	12_500_000,
	16_800_000,
	22_500_000,
	30_000_000,
	40_000_000,
	53_000_000,
	70_000_000,
	92_000_000,
	120_000_000,
	156_000_000,
	200_000_000,
}

// LiveThresholds maps cumulative diamonds received to live level.
var LiveThresholds = []int64{
	0,
	50,
	150,
	350,
	700,
	1_200,
	2_000,
	3_200,
	5_000,
	7_600,
	11_500,
	17_000,
	25_000,
	36_000,
	52_000,
	74_000,
	105_000,
	148_000,
	207_000,
	288_000,
	400_000,
	552_000,
	760_000,
	1_040_000,
	1_420_000,
	1_940_000,
	2_640_000,
	3_580_000,
	4_850_000,
	6_550_000,
	8_840_000,
	11_900_000,
	16_000_000,
	21_500_000,
	28_900_000,
	38_800_000,
	52_000_000,
	69_700_000,
	93_300_000,
	125_000_000,
	167_000_000,
}

// Compute returns the highest level whose breakpoint is at or below the
// cumulative amount, clamped to the table's final index.
func Compute(cumulative int64, table []int64) int {
	if len(table) == 0 || cumulative < table[0] {
		return 0
	}
	lo, hi := 0, len(table)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if table[mid] <= cumulative {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Wealth computes the wealth level for cumulative coins spent.
func Wealth(cumulativeSpent int64) int {
	return Compute(cumulativeSpent, WealthThresholds)
}

// Live computes the live level for cumulative diamonds received.
func Live(cumulativeReceived int64) int {
	return Compute(cumulativeReceived, LiveThresholds)
}
