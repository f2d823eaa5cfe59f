package qsim

// network.go builds the run-time network from its description and gives
// ordered access to its nodes and links

import (
	"hash/fnv"
	"math"
	"strconv"
	"sync"

	"github.com/iti/rngstream"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// Network owns every node, link and lane of a simulation.  Its structure is
// fixed once built; only link attributes change, through change events.
type Network struct {
	Name string

	nodes   map[string]*Node
	links   map[string]*Link
	nodeSeq []*Node // ordered by id
	linkSeq []*Link // ordered by id

	capParams CapacityParams
	holeSpeed float64 // m/s
}

// Node returns the node with the given id, nil if there is none
func (net *Network) Node(id string) *Node { return net.nodes[id] }

// Link returns the link with the given id, nil if there is none
func (net *Network) Link(id string) *Link { return net.links[id] }

// Nodes returns every node, ordered by id
func (net *Network) Nodes() []*Node { return net.nodeSeq }

// Links returns every link, ordered by id
func (net *Network) Links() []*Link { return net.linkSeq }

// BuildNetwork creates the run-time network described by desc.  Capacities are
// derived with the parameters of cfg; storage corrections are reported through w,
// which may be nil.
func BuildNetwork(desc *NetworkDesc, cfg *Config, w *Warner) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		w = NewWarner(nil, cfg.WarnLimit)
	}

	net := &Network{Name: desc.Name, capParams: cfg.capacityParams(), holeSpeed: cfg.holeSpeedPerSec()}
	if net.holeSpeed <= 0 {
		net.holeSpeed = math.Inf(1)
	}

	period := desc.CapacityPeriod
	if period <= 0 {
		period = 3600.0
	}

	net.nodes = lo.SliceToMap(desc.Nodes, func(nd NodeDesc) (string, *Node) {
		return nd.ID, &Node{ID: nd.ID, X: nd.X, Y: nd.Y, outByID: make(map[string]*Link)}
	})
	if len(net.nodes) != len(desc.Nodes) {
		return nil, errors.Wrap(ErrBadTopology, "duplicated node id")
	}
	nodeIDs := lo.Keys(net.nodes)
	slices.Sort(nodeIDs)
	for idx, id := range nodeIDs {
		node := net.nodes[id]
		node.idx = idx
		if cfg.NodeOrder == NodeOrderCapacityWeighted {
			node.rngstrm = newNodeStream(cfg.Seed, id)
		}
		net.nodeSeq = append(net.nodeSeq, node)
	}

	net.links = make(map[string]*Link)
	for idx := range desc.Links {
		ld := &desc.Links[idx]
		if _, present := net.links[ld.ID]; present {
			return nil, errors.Wrapf(ErrBadTopology, "duplicated link id %s", ld.ID)
		}
		link, err := net.buildLink(ld, cfg, period, w)
		if err != nil {
			return nil, err
		}
		net.links[ld.ID] = link
	}

	linkIDs := lo.Keys(net.links)
	slices.Sort(linkIDs)
	for idx, id := range linkIDs {
		link := net.links[id]
		link.idx = idx
		net.linkSeq = append(net.linkSeq, link)
		link.From.out = append(link.From.out, link)
		link.From.outByID[link.ID] = link
		link.To.in = append(link.To.in, link)
	}
	return net, nil
}

// rngstream.New advances a package-wide seed, so creating streams is serialized
var rngMu sync.Mutex

// rngstream moduli; seed words must lie in [1, m)
const (
	rngM1 = 4294967087
	rngM2 = 4294944443
)

// newNodeStream creates the node's random stream with a seed derived from the
// run's seed and the node id only, so that a run does not depend on how many
// streams the process created before it
func newNodeStream(seed, nodeID string) *rngstream.RngStream {
	rngMu.Lock()
	strm := rngstream.New(seed + "-" + nodeID)
	rngMu.Unlock()

	words := make([]uint64, 6)
	for idx := range words {
		h := fnv.New64a()
		h.Write([]byte(seed + "/" + nodeID + "/" + strconv.Itoa(idx)))
		mod := uint64(rngM1)
		if idx >= 3 {
			mod = rngM2
		}
		words[idx] = h.Sum64()%(mod-1) + 1
	}
	strm.SetSeed(words)
	return strm
}

// linkLength derives a link length from the coordinates of its end nodes
func linkLength(from, to *Node, coordSystem string) float64 {
	p1, p2 := orb.Point{from.X, from.Y}, orb.Point{to.X, to.Y}
	if coordSystem == "wgs84" {
		return geo.Distance(p1, p2)
	}
	return planar.Distance(p1, p2)
}

// buildLink creates a link with its lanes and derives their capacities
func (net *Network) buildLink(ld *LinkDesc, cfg *Config, period float64, w *Warner) (*Link, error) {
	from, to := net.nodes[ld.From], net.nodes[ld.To]
	if from == nil || to == nil {
		return nil, errors.Wrapf(ErrBadTopology, "link %s joins unknown nodes %s -> %s", ld.ID, ld.From, ld.To)
	}

	length := ld.Length
	if length <= 0 {
		length = linkLength(from, to, cfg.CoordSystem)
	}
	numLanes := ld.Lanes
	if numLanes <= 0 {
		numLanes = 1.0
	}
	capPerHour := ld.Capacity * 3600.0 / period

	link := &Link{ID: ld.ID, From: from, To: to, Length: length, FreeSpeed: ld.FreeSpeed,
		CapacityPerHour: capPerHour, NumLanes: numLanes,
		baseFreeSpeed: ld.FreeSpeed, baseCapacity: capPerHour, baseNumLanes: numLanes, net: net}

	entry := &Lane{ID: ld.ID + ".ol", link: link, entry: true}
	link.lanes = []*Lane{entry}

	if len(ld.LaneDefs) == 0 {
		entry.signal = signalOrNil(ld.Signal)
		link.exitLanes = []*Lane{entry}
		if err := link.deriveLaneAttributes(w); err != nil {
			return nil, err
		}
		return link, nil
	}

	// declared lanes
	byID := make(map[string]*Lane)
	for idx := range ld.LaneDefs {
		lnd := &ld.LaneDefs[idx]
		if _, present := byID[lnd.ID]; present || lnd.ID == entry.ID {
			return nil, errors.Wrapf(ErrBadTopology, "duplicated lane id %s on link %s", lnd.ID, ld.ID)
		}
		lane := &Lane{ID: lnd.ID, link: link, length: lnd.Length, lanes: lnd.Lanes,
			capacityPerHour: lnd.Capacity * 3600.0 / period, signal: signalOrNil(lnd.Signal)}
		if lane.lanes <= 0 {
			lane.lanes = 1.0
		}
		if lnd.Capacity <= 0 {
			lane.capacityPerHour = capPerHour * lane.lanes / numLanes
		}
		lane.baseCapacity = lane.capacityPerHour
		if lane.length <= 0 || lane.length >= length {
			return nil, errors.Wrapf(ErrBadTopology, "lane %s of link %s has length %v, link is %v long",
				lnd.ID, ld.ID, lnd.Length, length)
		}
		byID[lnd.ID] = lane
		link.lanes = append(link.lanes, lane)
	}

	// wire successors; lanes no other lane leads to follow the entry lane
	targeted := make(map[string]bool)
	for idx := range ld.LaneDefs {
		lnd := &ld.LaneDefs[idx]
		lane := byID[lnd.ID]
		for _, toID := range lnd.ToLanes {
			toLane := byID[toID]
			if toLane == nil {
				return nil, errors.Wrapf(ErrBadTopology, "lane %s of link %s leads to unknown lane %s", lnd.ID, ld.ID, toID)
			}
			lane.toLanes = append(lane.toLanes, toLane)
			targeted[toID] = true
		}
		if len(lnd.ToLanes) == 0 {
			if len(lnd.ToLinks) > 0 {
				lane.toLinks = lo.SliceToMap(lnd.ToLinks, func(id string) (string, bool) { return id, true })
			}
			link.exitLanes = append(link.exitLanes, lane)
		}
	}
	for _, lane := range link.lanes[1:] {
		if !targeted[lane.ID] {
			entry.toLanes = append(entry.toLanes, lane)
		}
	}
	if len(entry.toLanes) == 0 {
		return nil, errors.Wrapf(ErrBadTopology, "lanes of link %s form a cycle", ld.ID)
	}

	// what the entry lane leaves over of the link's length
	maxLen := lo.MaxBy(link.lanes[1:], func(a, b *Lane) bool { return a.length > b.length }).length
	entry.length = length - maxLen

	for _, lane := range link.lanes {
		if err := resolveReach(lane, make(map[*Lane]bool)); err != nil {
			return nil, err
		}
	}
	if err := link.deriveLaneAttributes(w); err != nil {
		return nil, err
	}
	return link, nil
}

// resolveReach fills an inner lane's set of reachable links from its successors
func resolveReach(lane *Lane, visiting map[*Lane]bool) error {
	if lane.toLinks != nil || len(lane.toLanes) == 0 {
		return nil
	}
	if visiting[lane] {
		return errors.Wrapf(ErrBadTopology, "lanes of link %s form a cycle", lane.link.ID)
	}
	visiting[lane] = true

	reach := make(map[string]bool)
	for _, next := range lane.toLanes {
		if err := resolveReach(next, visiting); err != nil {
			return err
		}
		if next.toLinks == nil {
			// some successor reaches every link, so does this lane
			reach = nil
			break
		}
		for id := range next.toLinks {
			reach[id] = true
		}
	}
	if reach != nil {
		lane.toLinks = reach
	}
	return nil
}

// deriveLaneAttributes sets the entry lane's attributes from the link's current
// ones, scales the declared lanes' capacities with the link's, and recomputes
// every lane's capacity
func (link *Link) deriveLaneAttributes(w *Warner) error {
	if math.IsNaN(link.FreeSpeed) || link.FreeSpeed <= 0 || math.IsInf(link.FreeSpeed, 0) {
		return errors.Wrapf(ErrBadTopology, "link %s has free speed %v", link.ID, link.FreeSpeed)
	}
	entry := link.lanes[0]
	if len(link.lanes) == 1 {
		entry.length = link.Length
	}
	entry.lanes = link.NumLanes
	entry.freeSpeed = link.FreeSpeed

	entry.capacityPerHour = link.CapacityPerHour

	scale := 1.0
	if link.baseCapacity > 0 {
		scale = link.CapacityPerHour / link.baseCapacity
	}
	for _, lane := range link.lanes[1:] {
		lane.freeSpeed = link.FreeSpeed
		lane.capacityPerHour = lane.baseCapacity * scale
	}
	for _, lane := range link.lanes {
		if err := lane.recalcCapacity(link.net.capParams, w); err != nil {
			return err
		}
	}
	return nil
}

// signalOrNil turns an optional signal description into an optional capability
func signalOrNil(sd *SignalDesc) SignalControl {
	if sd == nil {
		return nil
	}
	return NewFixedTimeSignal(sd)
}
