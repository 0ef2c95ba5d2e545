package report

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Revision identifies one commit in the revision window.
type Revision struct {
	ID       uint
	CommitID string
	Tag      string
	Date     time.Time
}

// Benchmark is the metadata the table builder needs about one benchmark.
// Benchmarks sharing a units value are aggregated into one table section.
type Benchmark struct {
	ID           uint
	Name         string
	Description  string
	Units        string
	UnitsTitle   string
	LessIsBetter bool
}

// Result is one scalar measurement of a benchmark at a revision.
type Result struct {
	BenchmarkID uint
	Value       float64
	StdDev      *float64
	ValMin      *float64
	ValMax      *float64
}

// Source is the read-only result store the table builder queries.
// Implementations must return revisions ordered by date descending.
type Source interface {
	LastRevisions(ctx context.Context, branchID uint, until time.Time, limit int) ([]Revision, error)
	Benchmarks(ctx context.Context) ([]Benchmark, error)
	Results(ctx context.Context, revisionID, executableID, environmentID uint, onlyPositive bool) ([]Result, error)
}

// Target identifies the (revision, executable, environment) a changes table
// is built for. Date and BranchID locate the revision window.
type Target struct {
	BranchID      uint
	Date          time.Time
	ExecutableID  uint
	EnvironmentID uint
}

// Totals holds the per-section averages. Both are arithmetic means of the
// raw current/previous ratios, transformed to percentages; averaging the
// ratios rather than the per-benchmark percentages is deliberate and must
// not be changed, since it defines the meaning of historical summaries.
type Totals struct {
	Change Value `json:"change"`
	Trend  Value `json:"trend"`
}

// Row is one benchmark's entry in a table section.
type Row struct {
	BenchName        string  `json:"bench_name"`
	BenchDescription string  `json:"bench_description"`
	Result           float64 `json:"result"`
	StdDev           Value   `json:"std_dev"`
	ValMin           Value   `json:"val_min"`
	ValMax           Value   `json:"val_max"`
	Change           Value   `json:"change"`
	Trend            Value   `json:"trend"`
}

// Section groups the benchmarks sharing one units value.
type Section struct {
	Units        string `json:"units"`
	UnitsTitle   string `json:"units_title"`
	LessIsBetter bool   `json:"lessisbetter"`
	HasStdDev    bool   `json:"has_stddev"`
	HasMin       bool   `json:"hasmin"`
	HasMax       bool   `json:"hasmax"`
	Precision    int    `json:"precision"`
	Totals       Totals `json:"totals"`
	Rows         []Row  `json:"rows"`
}

// Table is the full changes table for one (revision, executable,
// environment). It serializes losslessly to JSON for the report cache.
type Table []Section

// BuildTable builds the changes table for the target.
//
// The revision window is the trendDepth+1 most recent revisions on the
// target's branch not newer than the target. Element 0 is the current
// revision, element 1 (when present) the change comparison revision, and
// elements [trendDepth-2 : trendDepth+1] the past set averaged for trends.
func BuildTable(ctx context.Context, src Source, target Target, trendDepth int) (Table, error) {
	window, err := src.LastRevisions(ctx, target.BranchID, target.Date, trendDepth+1)
	if err != nil {
		return nil, fmt.Errorf("fetching revision window: %w", err)
	}

	if len(window) == 0 {
		return Table{}, nil
	}

	current := window[0]

	var (
		changeRev *Revision
		past      []Revision
	)

	if len(window) > 1 {
		changeRev = &window[1]

		lo, hi := trendDepth-2, trendDepth+1
		if lo < 0 {
			lo = 0
		}

		if lo > len(window) {
			lo = len(window)
		}

		if hi > len(window) {
			hi = len(window)
		}

		past = window[lo:hi]
	}

	// Only strictly positive current values qualify; non-positive samples
	// are invalid measurements.
	currentByBench, err := resultIndex(ctx, src, current.ID, target, true)
	if err != nil {
		return nil, err
	}

	var changeByBench map[uint]Result

	if changeRev != nil {
		changeByBench, err = resultIndex(ctx, src, changeRev.ID, target, false)
		if err != nil {
			return nil, err
		}
	}

	pastByRev := make([]map[uint]Result, 0, len(past))

	for _, rev := range past {
		byBench, err := resultIndex(ctx, src, rev.ID, target, false)
		if err != nil {
			return nil, err
		}

		pastByRev = append(pastByRev, byBench)
	}

	benchmarks, err := src.Benchmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching benchmarks: %w", err)
	}

	table := make(Table, 0)

	for _, units := range distinctUnits(benchmarks) {
		section := buildSection(units, benchmarks, currentByBench, changeByBench, pastByRev)

		// A units group with no qualifying results is omitted entirely.
		if len(section.Rows) == 0 {
			continue
		}

		table = append(table, section)
	}

	return table, nil
}

// resultIndex fetches the results for one revision and indexes them by
// benchmark ID.
func resultIndex(
	ctx context.Context,
	src Source,
	revisionID uint,
	target Target,
	onlyPositive bool,
) (map[uint]Result, error) {
	results, err := src.Results(ctx, revisionID, target.ExecutableID, target.EnvironmentID, onlyPositive)
	if err != nil {
		return nil, fmt.Errorf("fetching results for revision %d: %w", revisionID, err)
	}

	byBench := make(map[uint]Result, len(results))
	for _, r := range results {
		byBench[r.BenchmarkID] = r
	}

	return byBench, nil
}

// distinctUnits returns the distinct units values, sorted so that table
// section order is deterministic.
func distinctUnits(benchmarks []Benchmark) []string {
	seen := make(map[string]struct{}, len(benchmarks))
	units := make([]string, 0, len(benchmarks))

	for _, b := range benchmarks {
		if _, ok := seen[b.Units]; ok {
			continue
		}

		seen[b.Units] = struct{}{}
		units = append(units, b.Units)
	}

	sort.Strings(units)

	return units
}

// buildSection builds one units group of the table.
func buildSection(
	units string,
	benchmarks []Benchmark,
	currentByBench, changeByBench map[uint]Result,
	pastByRev []map[uint]Result,
) Section {
	section := Section{Units: units}

	var (
		changeRatios []float64
		trendRatios  []float64
	)

	// Lowest nonzero current value in the group, used below to derive the
	// number of significant digits for display.
	smallest := 1000.0

	members := make([]Benchmark, 0, len(benchmarks))

	for _, b := range benchmarks {
		if b.Units == units {
			members = append(members, b)
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].Name < members[j].Name
	})

	for _, bench := range members {
		section.UnitsTitle = bench.UnitsTitle
		section.LessIsBetter = bench.LessIsBetter

		current, ok := currentByBench[bench.ID]
		if !ok {
			continue
		}

		row := Row{
			BenchName:        bench.Name,
			BenchDescription: bench.Description,
			Result:           current.Value,
		}

		if current.StdDev != nil {
			section.HasStdDev = true
			row.StdDev = ValueOf(*current.StdDev)
		}

		if current.ValMin != nil {
			section.HasMin = true
			row.ValMin = ValueOf(*current.ValMin)
		}

		if current.ValMax != nil {
			section.HasMax = true
			row.ValMax = ValueOf(*current.ValMax)
		}

		// Change: percentage against the previous revision's result. A
		// missing or zero previous value yields no change at all.
		if prev, ok := changeByBench[bench.ID]; ok && prev.Value != 0 {
			row.Change = ValueOf((current.Value - prev.Value) * 100 / prev.Value)
			changeRatios = append(changeRatios, current.Value/prev.Value)
		}

		// Trend: percentage against the average over however many past
		// revisions have a result for this benchmark.
		var (
			pastSum float64
			pastNum int
		)

		for _, byBench := range pastByRev {
			if pastRes, ok := byBench[bench.ID]; ok {
				pastSum += pastRes.Value
				pastNum++
			}
		}

		if pastSum != 0 {
			average := pastSum / float64(pastNum)
			row.Trend = ValueOf((current.Value - average) * 100 / average)
			trendRatios = append(trendRatios, current.Value/average)
		}

		if current.Value != 0 && current.Value < smallest {
			smallest = current.Value
		}

		section.Rows = append(section.Rows, row)
	}

	section.Totals.Change = ratioAverage(changeRatios)
	section.Totals.Trend = ratioAverage(trendRatios)

	digits := 2
	for smallest < 1 {
		smallest *= 10
		digits++
	}

	section.Precision = digits

	return section
}

// ratioAverage converts a list of current/reference ratios into a
// percentage via the arithmetic mean of the ratios.
func ratioAverage(ratios []float64) Value {
	if len(ratios) == 0 {
		return Value{}
	}

	var sum float64
	for _, r := range ratios {
		sum += r
	}

	mean := sum / float64(len(ratios))

	return ValueOf((mean - 1) * 100)
}
