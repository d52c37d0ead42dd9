package tracing

import (
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/sarchlab/meshsim/datarecording"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
	"github.com/tebeka/atexit"
)

const traceTableName = "packet_trace"

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime uint64
	EndTime   uint64
	Hops      int
	Steps     string
	Packet    []byte
}

// DBTracer is a tracer that stores finished tasks into a DataRecorder. The
// packet of a task is stored in its canonical CBOR encoding.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder

	startTime, endTime sim.VTimeInCycle

	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer. The recorder is flushed when the program
// exits through atexit.
func NewDBTracer(dataRecorder datarecording.DataRecorder) (*DBTracer, error) {
	err := dataRecorder.CreateTable(traceTableName, taskTableEntry{})
	if err != nil {
		return nil, err
	}

	t := &DBTracer{
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(t.Terminate)

	return t, nil
}

// SetTimeRange limits the tracer to the tasks that end after startTime and
// start before endTime. Zero disables a bound.
func (t *DBTracer) SetTimeRange(startTime, endTime sim.VTimeInCycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startingTaskMustBeValid(task)

	if t.endTime > 0 && task.StartTime > t.endTime {
		return
	}

	t.tracingTasks[task.ID] = task
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.Where == "" {
		panic("task location must be set")
	}
}

// StepTask appends the step to the task.
func (t *DBTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	originalTask.Steps = append(originalTask.Steps, task.Steps...)
	t.tracingTasks[task.ID] = originalTask
}

// EndTask writes the task into the recorder.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	if t.startTime > 0 && task.EndTime < t.startTime {
		return
	}

	originalTask.EndTime = task.EndTime

	err := t.backend.InsertData(traceTableName, toTableEntry(originalTask))
	if err != nil {
		log.Panic(err)
	}
}

func toTableEntry(task Task) taskTableEntry {
	entry := taskTableEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartTime: uint64(task.StartTime),
		EndTime:   uint64(task.EndTime),
		Steps:     formatSteps(task.Steps),
	}

	if p, ok := task.Detail.(*packet.Packet); ok {
		entry.Hops = p.HopCount

		if encoded, err := packet.Encode(p); err == nil {
			entry.Packet = encoded
		}
	}

	return entry
}

func formatSteps(steps []TaskStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts,
			s.What+"@"+strconv.FormatUint(uint64(s.Time), 10))
	}

	return strings.Join(parts, ";")
}

// Terminate drops the unfinished tasks and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = make(map[string]Task)

	if err := t.backend.Flush(); err != nil {
		log.Panic(err)
	}
}
