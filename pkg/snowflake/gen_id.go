package snowflake

import (
	"fmt"
	"time"

	"github.com/sony/sonyflake"
)

// epoch anchors generated serials; ids count milliseconds from this instant.
var epoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Generator hands out process-wide unique serial numbers. Audit entries carry
// one so the trail keeps a total order even when timestamps collide at
// millisecond granularity.
type Generator struct {
	node *sonyflake.Sonyflake
}

// NewGenerator builds a generator for one machine id. Two processes sharing a
// machine id can emit colliding serials, so the id must be unique per running
// instance.
func NewGenerator(machineID uint16) (*Generator, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: epoch,
		MachineID: func() (uint16, error) {
			return machineID, nil
		},
	})
	if sf == nil {
		return nil, fmt.Errorf("sonyflake rejected settings")
	}
	return &Generator{node: sf}, nil
}

// GetID generates a new unique serial.
func (g *Generator) GetID() (uint64, error) {
	return g.node.NextID()
}
