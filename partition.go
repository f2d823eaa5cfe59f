package qsim

// partition.go holds the static partitions of the network.  Every node belongs
// to exactly one partition, and every link to the partition of its downstream
// node, so that within a phase each link and each node is touched by one goroutine.
// The one exception is a link's entry, written by the upstream node's partition;
// see Lane.PopFirstVehicle for how the two ends are kept apart.

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

type partition struct {
	idx int
	eng *Engine

	links []*Link
	nodes []*Node

	activeLinks []*Link
	activeNodes []*Node

	// links of this partition activated by other partitions during the node phase
	inboxMu sync.Mutex
	inbox   []*Link

	events   eventBuffer
	arrivals []arrival
	aborted  []arrival

	err error
}

// arrival records a vehicle that left traffic on a link during a phase
type arrival struct {
	veh  *Vehicle
	link *Link
	time float64
}

// assignPartitions splits the network's nodes into cnt contiguous blocks of the id order
func assignPartitions(eng *Engine, net *Network, cnt int) []*partition {
	nodes := net.Nodes()
	if cnt > len(nodes) && len(nodes) > 0 {
		cnt = len(nodes)
	}
	if cnt < 1 {
		cnt = 1
	}
	parts := make([]*partition, cnt)
	for idx := range parts {
		parts[idx] = &partition{idx: idx, eng: eng}
	}
	for idx, node := range nodes {
		p := parts[idx*cnt/len(nodes)]
		node.part = p
		node.active = false
		p.nodes = append(p.nodes, node)
	}
	for _, link := range net.Links() {
		p := link.To.part
		link.part = p
		link.active = false
		p.links = append(p.links, link)
	}
	return parts
}

func (p *partition) laneEvents() bool {
	return p.eng.cfg.UseLaneEvents
}

func (p *partition) emit(ev Event) {
	p.events.add(ev)
}

// fail records the first fatal error seen in this partition
func (p *partition) fail(sentinel error, format string, args ...any) {
	if p.err == nil {
		p.err = errors.Wrap(sentinel, fmt.Sprintf(format, args...))
	}
}

// arrive records a vehicle whose driver ends its leg on the link
func (p *partition) arrive(veh *Vehicle, link *Link) {
	p.arrivals = append(p.arrivals, arrival{veh: veh, link: link})
}

// abort records a stuck vehicle removed from traffic
func (p *partition) abort(veh *Vehicle, link *Link, now float64) {
	p.aborted = append(p.aborted, arrival{veh: veh, link: link, time: now})
}

// activateLink makes sure the link is stepped in the next link phase.  Links of
// other partitions are handed over through their inbox.
func (p *partition) activateLink(link *Link) {
	if link.part == p {
		p.addActiveLink(link)
		return
	}
	q := link.part
	q.inboxMu.Lock()
	q.inbox = append(q.inbox, link)
	q.inboxMu.Unlock()
}

func (p *partition) addActiveLink(link *Link) {
	if !link.active {
		link.active = true
		p.activeLinks = append(p.activeLinks, link)
	}
}

func (p *partition) addActiveNode(node *Node) {
	if !node.active {
		node.active = true
		p.activeNodes = append(p.activeNodes, node)
	}
}

// mergeInbox activates the links handed over by other partitions
func (p *partition) mergeInbox() {
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()
	for _, link := range p.inbox {
		p.addActiveLink(link)
	}
	p.inbox = p.inbox[:0]
}

// doLinkPhase steps every active link, and activates the downstream node of
// every link left with vehicles in an exit buffer
func (p *partition) doLinkPhase(now float64) {
	keep := p.activeLinks[:0]
	for _, link := range p.activeLinks {
		link.doSimStep(p, now)
		if p.err != nil {
			return
		}
		if link.hasBufferedVehicles() {
			p.addActiveNode(link.To)
		}
		if link.IsActive() {
			keep = append(keep, link)
		} else {
			link.active = false
		}
	}
	for idx := len(keep); idx < len(p.activeLinks); idx++ {
		p.activeLinks[idx] = nil
	}
	p.activeLinks = keep
}

// doNodePhase moves vehicles across every active node
func (p *partition) doNodePhase(now float64) {
	keep := p.activeNodes[:0]
	for _, node := range p.activeNodes {
		node.moveNode(p, now)
		if p.err != nil {
			return
		}
		if node.hasBufferedInbound() {
			keep = append(keep, node)
		} else {
			node.active = false
		}
	}
	for idx := len(keep); idx < len(p.activeNodes); idx++ {
		p.activeNodes[idx] = nil
	}
	p.activeNodes = keep
}

// runPhase runs fn on every partition, one goroutine each, and returns once all have finished
func runPhase(parts []*partition, fn func(p *partition)) {
	if len(parts) == 1 {
		fn(parts[0])
		return
	}
	var wg sync.WaitGroup
	for _, p := range parts {
		wg.Add(1)
		go func(p *partition) {
			defer wg.Done()
			fn(p)
		}(p)
	}
	wg.Wait()
}
