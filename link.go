package qsim

// link.go holds the Link: a directed edge owning an ordered list of lanes
// (exactly one unless lanes are declared), the waiting list through which
// departing vehicles enter traffic, and the moves of vehicles between its lanes.

// Link is a directed network edge
type Link struct {
	ID   string
	From *Node
	To   *Node

	// attributes in force at the current simulation time
	Length          float64
	FreeSpeed       float64
	CapacityPerHour float64
	NumLanes        float64

	// attributes as read from the network, the base for factor changes
	baseFreeSpeed float64
	baseCapacity  float64
	baseNumLanes  float64

	net   *Network
	idx   int
	lanes []*Lane // entry lane first

	exitLanes []*Lane
	waiting   []*Vehicle

	part   *partition
	active bool
}

// Lanes returns the link's lanes, the entry lane first
func (link *Link) Lanes() []*Lane { return link.lanes }

// EntryLane returns the lane adjacent to the upstream node
func (link *Link) EntryLane() *Lane { return link.lanes[0] }

// multiLane reports whether lane events are emitted for this link
func (link *Link) multiLane() bool {
	return len(link.lanes) > 1
}

// IsAcceptingFromUpstream reports whether a vehicle may enter the link now
func (link *Link) IsAcceptingFromUpstream(now float64) bool {
	return link.lanes[0].IsAcceptingFromUpstream(now)
}

// acceptsVehicle reports whether the vehicle may enter the link now
func (link *Link) acceptsVehicle(veh *Vehicle, now float64) bool {
	return link.lanes[0].acceptsVehicle(veh, now)
}

// IsActive reports whether stepping the link may change anything
func (link *Link) IsActive() bool {
	if len(link.waiting) > 0 {
		return true
	}
	for _, lane := range link.lanes {
		if lane.IsActive() {
			return true
		}
	}
	return false
}

// VehicleCount returns the number of vehicles in traffic on the link, waiting list included
func (link *Link) VehicleCount() int {
	cnt := len(link.waiting)
	for _, lane := range link.lanes {
		cnt += lane.VehicleCount()
	}
	return cnt
}

// hasBufferedVehicles reports whether some exit lane holds a vehicle ready to cross the downstream node
func (link *Link) hasBufferedVehicles() bool {
	for _, lane := range link.exitLanes {
		if len(lane.buffer) > 0 {
			return true
		}
	}
	return false
}

// addDepartingVehicle puts a vehicle that starts its leg here into the waiting list
func (link *Link) addDepartingVehicle(veh *Vehicle) {
	veh.moveTo(LocWaiting, link, nil)
	veh.earliestExit = 0
	link.waiting = append(link.waiting, veh)
}

// moveWaitingToBuffer lets departing vehicles enter the entry lane's buffer,
// sharing that lane's flow allowance with the driving queue
func (link *Link) moveWaitingToBuffer(now float64) {
	lane := link.lanes[0]
	for len(link.waiting) > 0 {
		if !lane.hasFlowCapacityLeftAndBufferSpace() {
			return
		}
		veh := link.waiting[0]
		link.waiting[0] = nil
		link.waiting = link.waiting[1:]

		lane.usedStorage += veh.pce()
		lane.addToBuffer(veh, now)
	}
}

// doSimStep steps every lane and then moves vehicles from the buffers of
// inner lanes into the lanes that follow them
func (link *Link) doSimStep(p *partition, now float64) {
	for _, lane := range link.lanes {
		lane.doSimStep(p, now)
	}
	for _, lane := range link.lanes {
		if len(lane.toLanes) > 0 {
			link.moveInnerLane(p, lane, now)
			if p.err != nil {
				return
			}
		}
	}
}

// moveInnerLane drains the buffer of a lane that leads to further lanes of the link.
// Of the successor lanes leading to the vehicle's next link, the one with the least
// used storage is chosen; when it cannot take the vehicle the buffer stays blocked.
func (link *Link) moveInnerLane(p *partition, from *Lane, now float64) {
	for len(from.buffer) > 0 {
		veh := from.buffer[0]

		nextID, hasNext := veh.driver.NextLinkID()
		var target *Lane
		for _, cand := range from.toLanes {
			if hasNext && !cand.leadsTo(nextID) {
				continue
			}
			if target == nil || cand.usedStorage < target.usedStorage {
				target = cand
			}
		}
		if target == nil {
			p.fail(ErrRouteInconsistent, "no lane of link %s leads from lane %s to link %s (vehicle %s)",
				link.ID, from.ID, nextID, veh.ID)
			return
		}
		if !target.acceptsVehicle(veh, now) {
			return
		}

		from.PopFirstVehicle(now)
		if p.laneEvents() {
			p.emit(Event{Time: now, Kind: EvtLaneLeave, Agent: veh.driver.ID(), Vehicle: veh.ID, Link: link.ID, Lane: from.ID})
		}
		target.addFromUpstream(veh, now, veh.earliestExit)
		if p.laneEvents() {
			p.emit(Event{Time: now, Kind: EvtLaneEnter, Agent: veh.driver.ID(), Vehicle: veh.ID, Link: link.ID, Lane: target.ID})
		}
	}
}

// addFromUpstream lets a vehicle that has crossed the upstream node enter the link
func (link *Link) addFromUpstream(p *partition, veh *Vehicle, now float64) {
	lane := link.lanes[0]
	lane.addFromUpstream(veh, now, veh.earliestExit)
	p.emit(Event{Time: now, Kind: EvtLinkEnter, Agent: veh.driver.ID(), Vehicle: veh.ID, Link: link.ID})
	if link.multiLane() && p.laneEvents() {
		p.emit(Event{Time: now, Kind: EvtLaneEnter, Agent: veh.driver.ID(), Vehicle: veh.ID, Link: link.ID, Lane: lane.ID})
	}
}

// allVehicles returns every vehicle in traffic on the link
func (link *Link) allVehicles() []*Vehicle {
	rtn := append([]*Vehicle{}, link.waiting...)
	for _, lane := range link.lanes {
		rtn = append(rtn, lane.allVehicles()...)
	}
	return rtn
}

// clear drops every vehicle in traffic from the link
func (link *Link) clear() {
	link.waiting = nil
	for _, lane := range link.lanes {
		lane.clear()
	}
}
