package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/meshsim/engine"
	"github.com/sarchlab/meshsim/sim"
)

// A ProgressBar tracks how many ticks of a run have been simulated.
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// Percent returns the finished share of the total, between 0 and 100.
func (b *ProgressBar) Percent() float64 {
	b.Lock()
	defer b.Unlock()

	if b.Total == 0 {
		return 100
	}

	return 100 * float64(b.Finished) / float64(b.Total)
}

// Func moves the bar forward after every engine tick.
func (b *ProgressBar) Func(ctx sim.HookCtx) {
	if ctx.Pos == engine.HookPosAfterTick {
		b.IncrementFinished(1)
	}
}
