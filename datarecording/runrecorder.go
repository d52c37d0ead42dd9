package datarecording

import (
	"os"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05.000000000"

// RunProperty is a single key-value fact about a simulation run.
type RunProperty struct {
	Property string
	Value    string
}

// RunRecorder records when a run started and ended, how it was invoked, and
// any property the caller sets in between.
type RunRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []RunProperty
	now       func() time.Time
}

// NewRunRecorder creates the run_info table in the recorder.
func NewRunRecorder(recorder DataRecorder) (*RunRecorder, error) {
	r := &RunRecorder{
		tableName: "run_info",
		recorder:  recorder,
		now:       time.Now,
	}

	if err := recorder.CreateTable(r.tableName, RunProperty{}); err != nil {
		return nil, err
	}

	return r, nil
}

// Start records the start time, the command line and the working directory.
func (r *RunRecorder) Start() {
	r.Set("Start Time", r.now().Format(timeLayout))
	r.Set("Command", strings.Join(os.Args, " "))

	if cwd, err := os.Getwd(); err == nil {
		r.Set("Working Directory", cwd)
	}
}

// Set adds a property.
func (r *RunRecorder) Set(property, value string) {
	r.entries = append(r.entries, RunProperty{Property: property, Value: value})
}

// End writes all the properties together with the end time and flushes.
func (r *RunRecorder) End() error {
	r.Set("End Time", r.now().Format(timeLayout))

	for _, entry := range r.entries {
		if err := r.recorder.InsertData(r.tableName, entry); err != nil {
			return err
		}
	}

	r.entries = nil

	return r.recorder.Flush()
}
