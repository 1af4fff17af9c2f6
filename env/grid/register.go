package grid

import "github.com/abmcore/abmcore/env"

// init wires this package's constructor into the env package's factory
// variable, breaking the import cycle between the Environment interface
// and its implementations — grounded directly on the teacher's
// sim/kv/register.go and sim/latency/register.go pattern.
func init() {
	env.NewGridEnvironmentFunc = New
}
