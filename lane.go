package qsim

// lane.go holds the queue model of one lane: a FIFO driving queue of vehicles
// that have entered the lane and are still travelling it, a FIFO buffer of
// vehicles that have reached its downstream end and wait to leave, and the
// flow and storage accounting that gates the passage between the two.

import (
	"math"

	"github.com/pkg/errors"
)

// storageEps absorbs rounding when comparing used against available storage
const storageEps = 1e-9

// Lane is one lane of a Link.  The lane adjacent to the upstream node (the
// entry lane) is the one vehicles enter from other links; lanes with no
// successor lanes (exit lanes) are the ones vehicles leave the link from.
type Lane struct {
	ID    string
	link  *Link
	entry bool

	// physical attributes, as they are at the current simulation time
	length          float64
	lanes           float64
	capacityPerHour float64
	freeSpeed       float64
	baseCapacity    float64 // declared lanes only, scaled with the link's capacity

	cap     Capacity
	derived bool

	// flow allowance of the current step, and the carried fractional allowance
	remaining float64
	carry     float64

	queue     []*Vehicle
	buffer    []*Vehicle
	stopQueue []*Vehicle // transit vehicles dwelling at a stop, ordered by earliest exit

	usedStorage float64
	bufferPCE   float64

	// storage freed and holes created by vehicles leaving at the downstream node.
	// The upstream node may be adding vehicles to this lane concurrently, so these
	// are folded into usedStorage and holes at the lane's next step.
	released float64
	newHoles []float64

	// release times of the holes present on the lane, earliest first
	holes []float64

	bufferLastMoved float64

	toLanes []*Lane
	toLinks map[string]bool // links reachable from this lane, nil means every link leaving the node

	signal SignalControl
}

// recalcCapacity derives the lane's capacity from its current attributes.  Storage
// corrections are reported through the warner, rate-limited.
func (l *Lane) recalcCapacity(p CapacityParams, w *Warner) error {
	c, err := ComputeCapacity(CapacityInput{Length: l.length, FreeSpeed: l.freeSpeed,
		Lanes: l.lanes, CapacityPerHour: l.capacityPerHour}, p)
	if err != nil {
		return errors.Wrapf(err, "link %s lane %s", l.link.ID, l.ID)
	}
	if c.StorageRaised && w != nil {
		w.Warnf("storageRaised", nil,
			"storage capacity of link %s lane %s raised to %.2f to sustain its flow capacity",
			l.link.ID, l.ID, c.StorageCapacity)
	}
	if c.StorageEnlarged && w != nil {
		w.Warnf("storageEnlarged", nil,
			"storage capacity of link %s lane %s enlarged to %.2f to carry its flow in a jam",
			l.link.ID, l.ID, c.StorageCapacity)
	}

	first := !l.derived
	l.cap = c
	l.derived = true
	if first {
		// a lane with fractional capacity may let its first vehicle pass at once
		if c.FlowFraction > 0 {
			l.carry = 1.0
		}
		if p.Holes {
			l.holes = make([]float64, c.Holes)
			for idx := range l.holes {
				l.holes[idx] = math.Inf(-1)
			}
		}
	} else if len(l.holes) > c.Holes {
		l.holes = l.holes[:c.Holes]
	}
	return nil
}

// isGreen reports whether the lane's downstream end lets vehicles through
func (l *Lane) isGreen(now float64) bool {
	return l.signal == nil || l.signal.IsGreen(now)
}

// leadsTo reports whether vehicles on this lane can reach the named link
func (l *Lane) leadsTo(linkID string) bool {
	return l.toLinks == nil || l.toLinks[linkID]
}

// IsActive reports whether stepping the lane may change anything
func (l *Lane) IsActive() bool {
	return (l.cap.FlowFraction > 0 && l.carry < 1.0) ||
		len(l.queue) > 0 || len(l.buffer) > 0 || len(l.stopQueue) > 0 ||
		l.released > 0 || len(l.newHoles) > 0
}

// IsAcceptingFromUpstream reports whether a vehicle may enter the lane now
func (l *Lane) IsAcceptingFromUpstream(now float64) bool {
	if l.usedStorage >= l.cap.StorageCapacity-storageEps {
		return false
	}
	if l.cap.Holes > 0 {
		return len(l.holes) > 0 && l.holes[0] <= now
	}
	return true
}

// acceptsVehicle is IsAcceptingFromUpstream for a given vehicle.  A vehicle of
// more than one PCE enters only where it fits whole, or onto an empty lane.
func (l *Lane) acceptsVehicle(veh *Vehicle, now float64) bool {
	if !l.IsAcceptingFromUpstream(now) {
		return false
	}
	pce := veh.pce()
	return pce <= 1.0 || l.usedStorage == 0 || l.usedStorage+pce <= l.cap.StorageCapacity+storageEps
}

// FirstVehicle returns the vehicle at the head of the buffer, nil when the buffer is empty
func (l *Lane) FirstVehicle() *Vehicle {
	if len(l.buffer) == 0 {
		return nil
	}
	return l.buffer[0]
}

// PopFirstVehicle takes the head of the buffer off the lane.  The storage it
// frees, and the hole it leaves behind, take effect at the lane's next step.
func (l *Lane) PopFirstVehicle(now float64) *Vehicle {
	veh := l.buffer[0]
	l.buffer[0] = nil
	l.buffer = l.buffer[1:]
	l.bufferPCE -= veh.pce()
	l.bufferLastMoved = now
	l.released += veh.pce()
	if l.cap.Holes > 0 {
		l.newHoles = append(l.newHoles, now+l.holeTravelTime())
	}
	return veh
}

// Capacity returns the lane's derived capacity
func (l *Lane) Capacity() Capacity { return l.cap }

// VehicleCount returns the number of vehicles driving, dwelling or buffered on the lane
func (l *Lane) VehicleCount() int {
	return len(l.queue) + len(l.buffer) + len(l.stopQueue)
}

func (l *Lane) holeTravelTime() float64 {
	return l.length / l.link.net.holeSpeed
}

// addFromUpstream puts a vehicle at the tail of the driving queue.  prevExit is the
// earliest exit time the vehicle had on the lane it came from; its fractional part is
// carried over, and the result floored on the entry lane.
func (l *Lane) addFromUpstream(veh *Vehicle, now, prevExit float64) {
	l.usedStorage += veh.pce()
	if l.cap.Holes > 0 && len(l.holes) > 0 {
		l.holes = l.holes[1:]
	}

	tt := math.Max(l.cap.FreeFlowTime, l.length/veh.Type.maxSpeed())
	exit := now + tt + fraction(prevExit)
	if l.entry {
		exit = math.Floor(exit)
	}
	veh.earliestExit = exit
	veh.moveTo(LocQueued, l.link, l)
	l.queue = append(l.queue, veh)
}

// foldReleases applies the storage releases and holes recorded by PopFirstVehicle
func (l *Lane) foldReleases() {
	if l.released != 0 {
		l.usedStorage -= l.released
		if l.usedStorage < storageEps {
			l.usedStorage = 0
		}
		l.released = 0
	}
	if len(l.newHoles) > 0 {
		l.holes = append(l.holes, l.newHoles...)
		l.newHoles = l.newHoles[:0]
		if len(l.holes) > l.cap.Holes {
			l.holes = l.holes[:l.cap.Holes]
		}
	}
}

// updateFlowAllowance refreshes the per-step allowance.  The fractional part of
// the flow capacity accumulates only while the lane is green and nothing waits in
// the buffer, and never beyond one vehicle.
func (l *Lane) updateFlowAllowance(now float64) {
	l.remaining = math.Floor(l.cap.FlowCapacity)
	if l.cap.FlowFraction > 0 && l.carry < 1.0 && len(l.buffer) == 0 && l.isGreen(now) {
		l.carry = roundFloat(l.carry+l.cap.FlowFraction, rdigits)
	}
}

// hasFlowCapacityLeftAndBufferSpace reports whether one more vehicle may enter the buffer this step
func (l *Lane) hasFlowCapacityLeftAndBufferSpace() bool {
	return (l.remaining >= 1.0 || l.carry >= 1.0) && l.bufferPCE < float64(l.cap.BufferCapacity)
}

// addToBuffer charges the vehicle against the step's allowance, the carry when that is spent
func (l *Lane) addToBuffer(veh *Vehicle, now float64) {
	if l.remaining >= 1.0 {
		l.remaining -= veh.Type.flowSize()
	} else {
		l.carry = roundFloat(l.carry-veh.Type.flowSize(), rdigits)
	}
	if len(l.buffer) == 0 {
		l.bufferLastMoved = now
	}
	veh.moveTo(LocBuffered, l.link, l)
	l.buffer = append(l.buffer, veh)
	l.bufferPCE += veh.pce()
}

// doSimStep advances the lane by one step: stops, then the driving queue (and on
// the entry lane the link's waiting list, in the configured order) into the buffer
func (l *Lane) doSimStep(p *partition, now float64) {
	l.foldReleases()
	l.updateFlowAllowance(now)
	l.moveStopsToQueue(p, now)

	waitingFirst := p.eng.cfg.InsertWaitingBeforeDriving
	if l.entry && waitingFirst {
		l.link.moveWaitingToBuffer(now)
	}
	l.moveQueueToBuffer(p, now)
	if l.entry && !waitingFirst {
		l.link.moveWaitingToBuffer(now)
	}
}

// moveQueueToBuffer moves vehicles that have reached the end of the lane into the
// buffer, as far as the flow allowance and buffer space permit.  Vehicles ending
// their leg on this link leave the lane without consuming flow capacity.
func (l *Lane) moveQueueToBuffer(p *partition, now float64) {
	for len(l.queue) > 0 {
		veh := l.queue[0]
		if veh.earliestExit > now {
			return
		}

		if td, ok := veh.driver.(TransitDriver); ok && l.divertToStop(p, veh, td, now) {
			continue
		}

		if veh.driver.WantsToArrive() {
			l.popQueueHead()
			l.usedStorage -= veh.pce()
			if l.usedStorage < storageEps {
				l.usedStorage = 0
			}
			if l.cap.Holes > 0 && len(l.holes) < l.cap.Holes {
				l.holes = append(l.holes, now+l.holeTravelTime())
			}
			p.arrive(veh, l.link)
			continue
		}

		if !l.hasFlowCapacityLeftAndBufferSpace() {
			return
		}
		l.popQueueHead()
		l.addToBuffer(veh, now)
	}
}

func (l *Lane) popQueueHead() {
	l.queue[0] = nil
	l.queue = l.queue[1:]
}

// divertToStop checks whether the vehicle at the queue head has a stop on this link.
// A stop that holds the vehicle moves it into the stop queue, and the return is true.
func (l *Lane) divertToStop(p *partition, veh *Vehicle, td TransitDriver, now float64) bool {
	stop := td.NextTransitStop()
	for stop != nil && stop.LinkID == l.link.ID {
		delay := td.HandleTransitStop(stop, now)
		if delay > 0 {
			l.popQueueHead()
			veh.earliestExit = now + delay
			veh.moveTo(LocAtStop, l.link, l)
			l.insertAtStop(veh)
			p.emit(Event{Time: now, Kind: EvtTransitArrivesAtStop, Agent: td.ID(), Vehicle: veh.ID,
				Link: l.link.ID, Stop: stop.ID, Delay: delay})
			return true
		}
		stop = td.NextTransitStop()
	}
	return false
}

// insertAtStop keeps the stop queue ordered by earliest exit, FIFO among equal times
func (l *Lane) insertAtStop(veh *Vehicle) {
	idx := len(l.stopQueue)
	for idx > 0 && l.stopQueue[idx-1].earliestExit > veh.earliestExit {
		idx--
	}
	l.stopQueue = append(l.stopQueue, nil)
	copy(l.stopQueue[idx+1:], l.stopQueue[idx:])
	l.stopQueue[idx] = veh
}

// moveStopsToQueue lets transit vehicles whose dwell is over rejoin the front of the driving queue
func (l *Lane) moveStopsToQueue(p *partition, now float64) {
	for len(l.stopQueue) > 0 && l.stopQueue[0].earliestExit <= now {
		veh := l.stopQueue[0]
		l.stopQueue[0] = nil
		l.stopQueue = l.stopQueue[1:]

		td := veh.driver.(TransitDriver)
		stop := td.NextTransitStop()
		if stop != nil {
			if delay := td.HandleTransitStop(stop, now); delay > 0 {
				veh.earliestExit = now + delay
				l.insertAtStop(veh)
				continue
			}
			p.emit(Event{Time: now, Kind: EvtTransitDepartsFromStop, Agent: td.ID(), Vehicle: veh.ID,
				Link: l.link.ID, Stop: stop.ID})
		}
		veh.moveTo(LocQueued, l.link, l)
		l.queue = append([]*Vehicle{veh}, l.queue...)
	}
}

// allVehicles returns every vehicle on the lane, buffer first
func (l *Lane) allVehicles() []*Vehicle {
	rtn := make([]*Vehicle, 0, l.VehicleCount())
	rtn = append(rtn, l.buffer...)
	rtn = append(rtn, l.queue...)
	rtn = append(rtn, l.stopQueue...)
	return rtn
}

// clear drops every vehicle from the lane
func (l *Lane) clear() {
	l.queue = nil
	l.buffer = nil
	l.stopQueue = nil
	l.usedStorage = 0
	l.bufferPCE = 0
	l.released = 0
	l.newHoles = nil
}
