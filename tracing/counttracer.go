package tracing

import (
	"slices"
	"sync"
)

// CountTracer counts the steps the tasks go through and measures how long
// the tasks of each kind take from start to end.
type CountTracer struct {
	filter TaskFilter

	lock              sync.Mutex
	inflightTasks     map[string]Task
	stepNames         []string
	stepCount         map[string]uint64
	taskWithStepCount map[string]uint64
	endedCount        map[string]uint64
	averageTime       map[string]float64
}

// NewCountTracer creates a new CountTracer
func NewCountTracer(filter TaskFilter) *CountTracer {
	return &CountTracer{
		filter:            filter,
		inflightTasks:     make(map[string]Task),
		stepCount:         make(map[string]uint64),
		taskWithStepCount: make(map[string]uint64),
		endedCount:        make(map[string]uint64),
		averageTime:       make(map[string]float64),
	}
}

// StepNames returns all the step names collected, in the order they were
// first seen.
func (t *CountTracer) StepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return slices.Clone(t.stepNames)
}

// StepCount returns the number of steps that is recorded with a certain step
// name.
func (t *CountTracer) StepCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stepCount[stepName]
}

// TaskCount returns the number of tasks that is recorded to have a certain
// step with a given name.
func (t *CountTracer) TaskCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskWithStepCount[stepName]
}

// EndedCount returns the number of finished tasks of a kind.
func (t *CountTracer) EndedCount(kind string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.endedCount[kind]
}

// AverageTime returns the average number of ticks the finished tasks of a
// kind took.
func (t *CountTracer) AverageTime(kind string) float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.averageTime[kind]
}

// InflightCount returns the number of tasks started but not ended.
func (t *CountTracer) InflightCount() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.inflightTasks)
}

// StartTask records the task start time
func (t *CountTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask counts the step if the task is traced.
func (t *CountTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	step := task.Steps[0]

	if _, seen := t.stepCount[step.What]; !seen {
		t.stepNames = append(t.stepNames, step.What)
	}

	t.stepCount[step.What]++

	if !taskContainsStep(originalTask, step) {
		t.taskWithStepCount[step.What]++
	}

	originalTask.Steps = append(originalTask.Steps, step)
	t.inflightTasks[task.ID] = originalTask
}

func taskContainsStep(task Task, step TaskStep) bool {
	for _, s := range task.Steps {
		if s.What == step.What {
			return true
		}
	}

	return false
}

// EndTask records the end of the task
func (t *CountTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	delete(t.inflightTasks, task.ID)

	kind := originalTask.Kind
	count := t.endedCount[kind]
	taskTime := float64(task.EndTime - originalTask.StartTime)

	t.averageTime[kind] =
		(t.averageTime[kind]*float64(count) + taskTime) / float64(count+1)
	t.endedCount[kind] = count + 1
}
