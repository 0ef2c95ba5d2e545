package ingest

import (
	"fmt"
	"time"

	"github.com/perfwatch/perfwatch/pkg/store"
)

// Payload is one incoming result. Mandatory fields identify the
// measurement; the remaining fields are optional statistics and, for a
// benchmark seen for the first time, its display metadata.
type Payload struct {
	CommitID    string   `json:"commitid"`
	Branch      string   `json:"branch"`
	Project     string   `json:"project"`
	Executable  string   `json:"executable"`
	Benchmark   string   `json:"benchmark"`
	Environment string   `json:"environment"`
	ResultValue *float64 `json:"result_value"`

	StdDev *float64 `json:"std_dev,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Q1     *float64 `json:"q1,omitempty"`
	Q3     *float64 `json:"q3,omitempty"`

	RevisionDate *time.Time `json:"revision_date,omitempty"`
	ResultDate   *time.Time `json:"result_date,omitempty"`

	// Benchmark metadata, adopted only when the benchmark is created.
	Units        string `json:"units,omitempty"`
	UnitsTitle   string `json:"units_title,omitempty"`
	LessIsBetter *bool  `json:"lessisbetter,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Validate checks that all mandatory fields are present and non-empty.
func (p *Payload) Validate() error {
	mandatory := []struct {
		key   string
		value string
	}{
		{"commitid", p.CommitID},
		{"branch", p.Branch},
		{"project", p.Project},
		{"executable", p.Executable},
		{"benchmark", p.Benchmark},
		{"environment", p.Environment},
	}

	for _, f := range mandatory {
		if f.value == "" {
			return fmt.Errorf("value for key %q empty in request", f.key)
		}
	}

	if p.ResultValue == nil {
		return fmt.Errorf("key %q missing from request", "result_value")
	}

	return nil
}

// benchmark builds the benchmark row created when the payload names a
// benchmark seen for the first time.
func (p *Payload) benchmark() *store.Benchmark {
	bench := &store.Benchmark{
		Name:          p.Benchmark,
		BenchmarkType: "C",
		Description:   p.Description,
		Units:         p.Units,
		UnitsTitle:    p.UnitsTitle,
		LessIsBetter:  true,
	}

	if bench.Units == "" {
		bench.Units = "seconds"
	}

	if bench.UnitsTitle == "" {
		bench.UnitsTitle = "Time"
	}

	if p.LessIsBetter != nil {
		bench.LessIsBetter = *p.LessIsBetter
	}

	return bench
}

// resultDate picks the measurement timestamp: the payload's result date,
// else the revision date, else now.
func (p *Payload) resultDate(rev *store.Revision) time.Time {
	if p.ResultDate != nil {
		return *p.ResultDate
	}

	if !rev.Date.IsZero() {
		return rev.Date
	}

	return time.Now().UTC()
}
