package kdtree

import "github.com/abmcore/abmcore/env"

func init() {
	env.NewKdtreeEnvironmentFunc = New
}
