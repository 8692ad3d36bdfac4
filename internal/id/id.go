package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init sets the snowflake node for this process. Only the first call has an
// effect.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New returns a time-ordered id that is unique across instances with
// distinct node ids. It falls back to node 0 when Init was never called.
func New() string {
	_ = Init(0)
	return node.Generate().String()
}
