package line

import "github.com/solatis/linekeeper/internal/types"

// Station is a work cell holding items up to its capacity. Ports do not
// change its fullness.
type Station struct {
	*Module
}

// NewStation creates a station module.
func NewStation(cfg Config, arena *Arena, opts ...ModuleOption) *Station {
	return &Station{Module: NewModule(cfg, arena, opts...)}
}

// Conveyor is a transport module with one lane per output port. A lane is
// full when it holds LaneCapacity items; the whole conveyor is full at its
// module capacity. Items without a route travel on lane 0. An arriving item
// is refused when its lane (its pre-assigned route, else lane 0) is full.
type Conveyor struct {
	*Module
	laneCapacity int
}

// NewConveyor creates a conveyor; laneCapacity 0 disables the per-lane limit.
func NewConveyor(cfg Config, laneCapacity int, arena *Arena, opts ...ModuleOption) *Conveyor {
	c := &Conveyor{Module: NewModule(cfg, arena, opts...), laneCapacity: laneCapacity}
	c.Module.isFull = c.portFull
	c.Module.admit = c.laneAdmits
	return c
}

// LaneCapacity returns the per-port item limit.
func (c *Conveyor) LaneCapacity() int { return c.laneCapacity }

// LaneCount returns how many owned items travel to port.
func (c *Conveyor) LaneCount(port int) int {
	return c.laneCount(c.Items(), port)
}

func (c *Conveyor) lane(id types.ItemID) int {
	if p, ok := c.router.Port(id); ok {
		return p
	}
	return 0
}

func (c *Conveyor) laneCount(held []types.ItemID, port int) int {
	n := 0
	for _, id := range held {
		if c.lane(id) == port {
			n++
		}
	}
	return n
}

func (c *Conveyor) portFull(port int) bool {
	if c.atCapacity() {
		return true
	}
	return c.laneCapacity > 0 && c.LaneCount(port) >= c.laneCapacity
}

// laneAdmits runs under the arena lock with the conveyor's current holdings.
func (c *Conveyor) laneAdmits(held []types.ItemID, id types.ItemID) bool {
	if !c.withinCapacity(held, id) {
		return false
	}
	return c.laneCapacity == 0 || c.laneCount(held, c.lane(id)) < c.laneCapacity
}
