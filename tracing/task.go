package tracing

import "github.com/sarchlab/meshsim/sim"

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time sim.VTimeInCycle `json:"time"`
	What string           `json:"what"`
}

// A Task is the journey of one packet through the mesh.
type Task struct {
	ID        string           `json:"id"`
	ParentID  string           `json:"parent_id"`
	Kind      string           `json:"kind"`
	What      string           `json:"what"`
	Where     string           `json:"where"`
	StartTime sim.VTimeInCycle `json:"start_time"`
	EndTime   sim.VTimeInCycle `json:"end_time"`
	Steps     []TaskStep       `json:"steps"`
	Detail    any              `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// AllTasks accepts every task.
func AllTasks(Task) bool { return true }

// KindFilter accepts the tasks of the given kinds.
func KindFilter(kinds ...string) TaskFilter {
	return func(t Task) bool {
		for _, k := range kinds {
			if t.Kind == k {
				return true
			}
		}

		return false
	}
}
