// Command meshsim runs packet-switched mesh network simulations.
package main

import (
	"github.com/sarchlab/meshsim/meshsim/cmd"
	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(cmd.Execute())
}
