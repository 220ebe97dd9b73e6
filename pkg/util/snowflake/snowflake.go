package snowflake

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
	nodeID   int64 = 1
)

// Init configures the snowflake node. Call once at startup; machineID must
// be unique per server instance (0-1023).
func Init(machineID int64) {
	nodeID = machineID
	nodeOnce.Do(func() {
		if nodeID < 0 || nodeID > 1023 {
			nodeID = 1
			zap.L().Warn("invalid snowflake machineID in config, using 1")
		}
		var err error
		node, err = snowflake.NewNode(nodeID)
		if err != nil {
			zap.L().Fatal("snowflake node init failed", zap.Error(err))
		}
	})
}

// GenerateID returns a new snowflake id.
func GenerateID() int64 {
	if node == nil {
		Init(nodeID)
	}
	return node.Generate().Int64()
}
