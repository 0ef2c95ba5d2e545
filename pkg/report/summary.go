package report

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Color is the traffic-light classification of a report.
type Color string

// Report color codes, ordered from neutral to most severe.
const (
	ColorNone   Color = "none"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

// Config tunes the significance classification. It is passed explicitly;
// the engine never reads process-wide settings.
type Config struct {
	ChangeThreshold float64
	TrendThreshold  float64
	TrendDepth      int
}

// classify maps a percentage to a color. For lessisbetter benchmarks the
// sign is flipped first, so that an increase reads as a regression. The
// comparison is strict: a value exactly at the threshold is not significant.
func classify(val float64, lessIsBetter bool, threshold float64) Color {
	if lessIsBetter {
		val = -val
	}

	switch {
	case val < -threshold:
		return ColorRed
	case val > threshold:
		return ColorGreen
	default:
		return ColorNone
	}
}

// signal is a running maximum over one category of change: the most
// salient (value, label, color) seen so far.
type signal struct {
	label string
	val   float64
	color Color
}

func newSignal() signal {
	return signal{color: ColorNone}
}

// dominatedBy reports whether a candidate outranks the current maximum.
// A regression outranks any improvement regardless of magnitude; within
// the same severity, the larger magnitude wins.
func (s *signal) dominatedBy(val float64, color Color) bool {
	switch {
	case color == ColorRed && s.color != ColorRed:
		return true
	case color == ColorRed && math.Abs(val) > math.Abs(s.val):
		return true
	case color == ColorGreen && s.color != ColorRed && math.Abs(val) > math.Abs(s.val):
		return true
	default:
		return false
	}
}

// consider updates the running maximum if the candidate dominates it.
func (s *signal) consider(val float64, color Color, label string) {
	if s.dominatedBy(val, color) {
		s.val = val
		s.color = color
		s.label = label
	}
}

// Summary is the one-line reduction of a changes table.
type Summary struct {
	Text  string
	Color Color
}

// Summarize reduces a changes table to its most salient signal. It is a
// pure function of the table and the thresholds; an unchanged table always
// yields an identical summary.
func Summarize(table Table, cfg Config) Summary {
	avgChange := newSignal()
	maxChange := newSignal()
	avgTrend := newSignal()
	maxTrend := newSignal()

	for _, section := range table {
		label := strings.ToLower(section.UnitsTitle)

		if v := section.Totals.Change; v.Valid() {
			avgChange.consider(
				v.Float64(),
				classify(v.Float64(), section.LessIsBetter, cfg.ChangeThreshold),
				label,
			)
		}

		if v := section.Totals.Trend; v.Valid() {
			avgTrend.consider(
				v.Float64(),
				classify(v.Float64(), section.LessIsBetter, cfg.TrendThreshold),
				label,
			)
		}

		for _, row := range section.Rows {
			if v := row.Change; v.Valid() {
				maxChange.consider(
					v.Float64(),
					classify(v.Float64(), section.LessIsBetter, cfg.ChangeThreshold),
					row.BenchName,
				)
			}

			if v := row.Trend; v.Valid() {
				maxTrend.consider(
					v.Float64(),
					classify(v.Float64(), section.LessIsBetter, cfg.TrendThreshold),
					row.BenchName,
				)
			}
		}
	}

	return assemble(avgChange, maxChange, avgTrend, maxTrend)
}

// assemble picks the final summary in strict priority order: average
// change, single-benchmark change, average trend, single-benchmark trend.
// Later steps are lower priority but may still fill a colorless result.
// Trends never surface as red, only yellow, to distinguish drifting from
// a clean break.
func assemble(avgChange, maxChange, avgTrend, maxTrend signal) Summary {
	out := Summary{Color: ColorNone}

	if avgChange.color != ColorNone {
		out.Text = sprintfSignal("Average %s %+.1f%%", avgChange)
		out.Color = avgChange.color
	}

	if maxChange.color != ColorNone && out.Color != ColorRed {
		out.Text = sprintfSignal("%s %+.1f%%", maxChange)
		out.Color = maxChange.color
	}

	if avgTrend.color != ColorNone && out.Color == ColorNone {
		out.Text = sprintfSignal("Average %s trend %+.1f%%", avgTrend)
		out.Color = trendColor(avgTrend.color)
	}

	if maxTrend.color != ColorNone && out.Color != ColorRed &&
		(out.Color == ColorNone ||
			(out.Color == ColorGreen && !strings.Contains(out.Text, "trend"))) {
		out.Text = sprintfSignal("%s trend %+.1f%%", maxTrend)
		out.Color = trendColor(maxTrend.color)
	}

	return out
}

// trendColor downgrades red to yellow for trend-derived colors.
func trendColor(c Color) Color {
	if c == ColorRed {
		return ColorYellow
	}

	return c
}

// sprintfSignal renders a signal with its label and the raw signed
// percentage. The sign reflects the raw direction of the value, not the
// lessisbetter-adjusted one.
func sprintfSignal(format string, s signal) string {
	return fmt.Sprintf(format, s.label, s.val)
}

// Materialize builds the changes table for the target and reduces it to a
// summary. It is free of side effects; the persistence layer is
// responsible for writing the returned table and summary to the report.
func Materialize(ctx context.Context, src Source, target Target, cfg Config) (Table, Summary, error) {
	table, err := BuildTable(ctx, src, target, cfg.TrendDepth)
	if err != nil {
		return nil, Summary{}, err
	}

	return table, Summarize(table, cfg), nil
}
