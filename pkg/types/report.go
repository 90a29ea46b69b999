package types

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// RunState is the state of one run.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// Finished reports whether the run reached a final state.
func (s RunState) Finished() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

// RunReport is the final or in-progress report of one run.
type RunReport struct {
	// Meta information
	RunID      string     `json:"run_id"`
	Command    string     `json:"command"`
	State      RunState   `json:"state"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`

	// Problem and distribution
	Problem ProblemInfo `json:"problem"`
	Grid    string      `json:"grid"`
	Ranks   int         `json:"ranks"`

	// Outcome
	Info     int     `json:"info"`
	Verdict  string  `json:"verdict,omitempty"`
	Residual float64 `json:"residual,omitempty"`
	Error    string  `json:"error,omitempty"`

	// Per task kind timings on the reporting rank
	Tasks []TaskKindReport `json:"tasks,omitempty"`
}

// ProblemInfo describes the matrix that was processed.
type ProblemInfo struct {
	M     int   `json:"m"`
	N     int   `json:"n"`
	MB    int   `json:"mb"`
	NB    int   `json:"nb"`
	Seed  int64 `json:"seed"`
	Check bool  `json:"check"`
}

// TaskKindReport holds task durations of one kind, in microseconds.
type TaskKindReport struct {
	Kind   string  `json:"kind"`
	Count  int64   `json:"count"`
	MeanUs float64 `json:"mean_us"`
	P50Us  int64   `json:"p50_us"`
	P99Us  int64   `json:"p99_us"`
	MaxUs  int64   `json:"max_us"`
}

// Finish moves the report to a final state at end.
func (r *RunReport) Finish(err error, end time.Time) {
	r.EndTime = &end
	r.DurationMs = end.Sub(r.StartTime).Milliseconds()
	if err != nil {
		r.State = RunStateFailed
		r.Error = err.Error()
		return
	}
	r.State = RunStateSucceeded
}

// Marshal encodes the report as JSON.
func (r *RunReport) Marshal() ([]byte, error) {
	return sonic.Marshal(r)
}

// MarshalIndent encodes the report as indented JSON.
func (r *RunReport) MarshalIndent() ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(r, "", "  ")
}

// ParseRunReport decodes a report.
func ParseRunReport(data []byte) (*RunReport, error) {
	var r RunReport
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse run report: %w", err)
	}
	return &r, nil
}
