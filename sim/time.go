package sim

// VTimeInCycle is the simulation time, counted in ticks since the start of
// the simulation.
type VTimeInCycle uint64

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// A Named object is an object that has a name.
type Named interface {
	Name() string
}
