package octree

import "github.com/abmcore/abmcore/env"

func init() {
	env.NewOctreeEnvironmentFunc = New
}
