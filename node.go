package qsim

// node.go holds the Node, which hands vehicles from the buffers of its
// inbound links to the entry lanes of its outbound links

import (
	"github.com/iti/rngstream"
)

// Node is a network node
type Node struct {
	ID string
	X  float64
	Y  float64

	idx     int
	in      []*Link // ordered by link id
	out     []*Link
	outByID map[string]*Link

	// decides the order inbound links are served in, nil for a fixed order
	rngstrm *rngstream.RngStream

	part   *partition
	active bool
}

// InLinks returns the links ending at the node
func (n *Node) InLinks() []*Link { return n.in }

// OutLinks returns the links starting at the node
func (n *Node) OutLinks() []*Link { return n.out }

// hasBufferedInbound reports whether some inbound link has a vehicle waiting to cross
func (n *Node) hasBufferedInbound() bool {
	for _, link := range n.in {
		if link.hasBufferedVehicles() {
			return true
		}
	}
	return false
}

// moveNode serves every inbound link with buffered vehicles once.  With a random
// stream the order is drawn without replacement, each link weighted by its
// flow capacity; otherwise links are served in id order.
func (n *Node) moveNode(p *partition, now float64) {
	cands := make([]*Link, 0, len(n.in))
	for _, link := range n.in {
		if link.hasBufferedVehicles() {
			cands = append(cands, link)
		}
	}

	for len(cands) > 0 {
		pick := 0
		if n.rngstrm != nil && len(cands) > 1 {
			total := 0.0
			for _, link := range cands {
				total += link.CapacityPerHour
			}
			if total > 0 {
				u := n.rngstrm.RandU01() * total
				acc := 0.0
				for idx, link := range cands {
					acc += link.CapacityPerHour
					pick = idx
					if u < acc {
						break
					}
				}
			}
		}
		link := cands[pick]
		cands = append(cands[:pick], cands[pick+1:]...)

		for _, lane := range link.exitLanes {
			n.moveLane(p, link, lane, now)
			if p.err != nil {
				return
			}
		}
	}
}

// moveLane moves vehicles from the head of the lane's buffer across the node for
// as long as their next link accepts them.  A head that cannot move blocks the
// buffer, unless it has been blocked for the stuck time.
func (n *Node) moveLane(p *partition, link *Link, lane *Lane, now float64) {
	cfg := p.eng.cfg
	for {
		veh := lane.FirstVehicle()
		if veh == nil || !lane.isGreen(now) {
			return
		}

		nextID, hasNext := veh.driver.NextLinkID()
		if !hasNext {
			lane.PopFirstVehicle(now)
			n.emitLeave(p, veh, link, lane, now)
			p.arrive(veh, link)
			continue
		}

		next := n.outByID[nextID]
		if next == nil {
			p.fail(ErrRouteInconsistent, "link %s does not leave node %s (vehicle %s, agent %s)",
				nextID, n.ID, veh.ID, veh.driver.ID())
			return
		}
		if !lane.leadsTo(nextID) {
			p.fail(ErrRouteInconsistent, "lane %s of link %s does not lead to link %s (vehicle %s)",
				lane.ID, link.ID, nextID, veh.ID)
			return
		}

		if next.acceptsVehicle(veh, now) {
			n.moveVehicleOverNode(p, veh, link, lane, next, now)
			continue
		}

		if now-lane.bufferLastMoved >= cfg.StuckTime {
			if cfg.RemoveStuckVehicles {
				lane.PopFirstVehicle(now)
				p.abort(veh, link, now)
			} else {
				n.moveVehicleOverNode(p, veh, link, lane, next, now)
			}
			continue
		}
		return
	}
}

func (n *Node) emitLeave(p *partition, veh *Vehicle, link *Link, lane *Lane, now float64) {
	if link.multiLane() && p.laneEvents() {
		p.emit(Event{Time: now, Kind: EvtLaneLeave, Agent: veh.driver.ID(), Vehicle: veh.ID, Link: link.ID, Lane: lane.ID})
	}
	p.emit(Event{Time: now, Kind: EvtLinkLeave, Agent: veh.driver.ID(), Vehicle: veh.ID, Link: link.ID})
}

// moveVehicleOverNode takes the vehicle off the buffer and puts it on the next link
func (n *Node) moveVehicleOverNode(p *partition, veh *Vehicle, link *Link, lane *Lane, next *Link, now float64) {
	lane.PopFirstVehicle(now)
	n.emitLeave(p, veh, link, lane, now)
	veh.driver.NotifyMoveOverNode(next.ID)
	next.addFromUpstream(p, veh, now)
	p.activateLink(next)
}
