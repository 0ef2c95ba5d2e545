package report_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfwatch/perfwatch/pkg/report"
)

func defaultThresholds() report.Config {
	return report.Config{
		ChangeThreshold: 3.0,
		TrendThreshold:  5.0,
		TrendDepth:      10,
	}
}

// sectionWithRows is a shorthand for a table section in summarizer tests;
// the builder-specific fields (precision, flags) do not matter here.
func sectionWithRows(unitsTitle string, lessIsBetter bool, rows ...report.Row) report.Section {
	return report.Section{
		Units:        unitsTitle,
		UnitsTitle:   unitsTitle,
		LessIsBetter: lessIsBetter,
		Rows:         rows,
	}
}

func TestSummarize_EmptyTable(t *testing.T) {
	got := report.Summarize(report.Table{}, defaultThresholds())

	assert.Equal(t, report.ColorNone, got.Color)
	assert.Empty(t, got.Text)
}

func TestSummarize_ThresholdBoundaryIsStrict(t *testing.T) {
	table := report.Table{
		sectionWithRows("Time", false,
			report.Row{BenchName: "at-plus", Change: report.ValueOf(3.0)},
			report.Row{BenchName: "at-minus", Change: report.ValueOf(-3.0)},
		),
	}

	got := report.Summarize(table, defaultThresholds())

	assert.Equal(t, report.ColorNone, got.Color)
	assert.Empty(t, got.Text)
}

func TestSummarize_RegressionWinsOverLargerImprovement(t *testing.T) {
	table := report.Table{
		sectionWithRows("Time", false,
			report.Row{BenchName: "regressed", Change: report.ValueOf(-4.0)},
			report.Row{BenchName: "improved", Change: report.ValueOf(10.0)},
		),
	}

	got := report.Summarize(table, defaultThresholds())

	assert.Equal(t, report.ColorRed, got.Color)
	assert.Equal(t, "regressed -4.0%", got.Text)
}

func TestSummarize_BiggerRegressionWins(t *testing.T) {
	table := report.Table{
		sectionWithRows("Time", false,
			report.Row{BenchName: "small", Change: report.ValueOf(-3.5)},
			report.Row{BenchName: "large", Change: report.ValueOf(-4.0)},
		),
	}

	got := report.Summarize(table, defaultThresholds())

	assert.Equal(t, report.ColorRed, got.Color)
	assert.Equal(t, "large -4.0%", got.Text)
}

func TestSummarize_AverageChangeOutranksSingleGreen(t *testing.T) {
	section := sectionWithRows("Time", false,
		report.Row{BenchName: "fast", Change: report.ValueOf(8.0)},
	)
	section.Totals.Change = report.ValueOf(-6.0)

	got := report.Summarize(report.Table{section}, defaultThresholds())

	// The red section average survives; the green single change cannot
	// displace a red result.
	assert.Equal(t, report.ColorRed, got.Color)
	assert.Equal(t, "Average time -6.0%", got.Text)
}

func TestSummarize_TrendRedSurfacesAsYellow(t *testing.T) {
	table := report.Table{
		sectionWithRows("Time", false,
			report.Row{BenchName: "drifting", Trend: report.ValueOf(-6.0)},
		),
	}

	got := report.Summarize(table, defaultThresholds())

	assert.Equal(t, report.ColorYellow, got.Color)
	assert.Equal(t, "drifting trend -6.0%", got.Text)
}

func TestSummarize_AverageTrendGreen(t *testing.T) {
	section := sectionWithRows("Time", false)
	section.Totals.Trend = report.ValueOf(6.0)

	got := report.Summarize(report.Table{section}, defaultThresholds())

	assert.Equal(t, report.ColorGreen, got.Color)
	assert.Equal(t, "Average time trend +6.0%", got.Text)
}

func TestSummarize_LessIsBetterFlipsSeverity(t *testing.T) {
	table := report.Table{
		// Runtime went up 4%, which for a lessisbetter metric is a
		// regression, but the displayed sign stays raw.
		sectionWithRows("Time", true,
			report.Row{BenchName: "float", Change: report.ValueOf(4.0)},
		),
	}

	got := report.Summarize(table, defaultThresholds())

	assert.Equal(t, report.ColorRed, got.Color)
	assert.Equal(t, "float +4.0%", got.Text)
}

func TestSummarize_Deterministic(t *testing.T) {
	table := report.Table{
		sectionWithRows("Time", false,
			report.Row{BenchName: "a", Change: report.ValueOf(-4.0), Trend: report.ValueOf(-6.0)},
			report.Row{BenchName: "b", Change: report.ValueOf(3.5)},
		),
	}

	first := report.Summarize(table, defaultThresholds())
	second := report.Summarize(table, defaultThresholds())

	assert.Equal(t, first, second)
}

func TestMaterialize_FloatRegression(t *testing.T) {
	// The "float" benchmark slows from 15.0 to 15.46 (+3.07%), a red
	// change under a 3% threshold. A second flat benchmark in the same
	// units group keeps the section average insignificant, so the single
	// benchmark change is the surfaced signal.
	src := &memSource{
		revisions: []report.Revision{
			{ID: 1, CommitID: "a", Date: day(1)},
			{ID: 2, CommitID: "b", Date: day(2)},
		},
		benchmarks: []report.Benchmark{
			{ID: 1, Name: "float", Units: "seconds", UnitsTitle: "Time", LessIsBetter: true},
			{ID: 2, Name: "int", Units: "seconds", UnitsTitle: "Time", LessIsBetter: true},
		},
		results: map[uint][]report.Result{
			1: {
				{BenchmarkID: 1, Value: 15.0},
				{BenchmarkID: 2, Value: 100.0},
			},
			2: {
				{BenchmarkID: 1, Value: 15.46},
				{BenchmarkID: 2, Value: 100.0},
			},
		},
	}

	target := report.Target{BranchID: 1, Date: day(2), ExecutableID: 1, EnvironmentID: 1}

	table, summary, err := report.Materialize(context.Background(), src, target, defaultThresholds())
	require.NoError(t, err)
	require.Len(t, table, 1)

	assert.Equal(t, report.ColorRed, summary.Color)
	assert.Equal(t, "float +3.1%", summary.Text)
}
