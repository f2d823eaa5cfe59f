package qsim

// routes.go provides a free-speed router over the network, used to complete legs
// that name only their origin and destination links.

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach is to convert the network into the data structures of a graph
// package that has built-in path discovery algorithms.  Graph nodes are network nodes,
// and each graph edge stands for the fastest link between its two nodes, weighted by
// that link's free-flow travel time.
//
//   The Dijkstra algorithm we call computes a tree of shortest paths from a named node,
// so for a route from link A to link B we compute (or look up in the cache) the tree
// rooted in A's downstream node and read off the path to B's upstream node.

// nodePair identifies a directed pair of nodes by their graph ids
type nodePair struct {
	from, to int64
}

// FreeSpeedRouter routes on free-flow travel times, as they are when the router is built
type FreeSpeedRouter struct {
	net      *Network
	g        *simple.WeightedDirectedGraph
	fastest  map[nodePair]*Link
	cachedSP map[int64]path.Shortest
}

// NewFreeSpeedRouter builds the graph representation of net
func NewFreeSpeedRouter(net *Network) *FreeSpeedRouter {
	fsr := &FreeSpeedRouter{net: net, fastest: make(map[nodePair]*Link), cachedSP: make(map[int64]path.Shortest)}
	fsr.g = simple.NewWeightedDirectedGraph(0, math.Inf(1))

	for _, node := range net.Nodes() {
		fsr.g.AddNode(simple.Node(node.idx))
	}

	for _, link := range net.Links() {
		if link.From == link.To {
			// self loops carry no route
			continue
		}
		key := nodePair{from: int64(link.From.idx), to: int64(link.To.idx)}
		tt := link.Length / link.FreeSpeed
		if prev, present := fsr.fastest[key]; present && prev.Length/prev.FreeSpeed <= tt {
			continue
		}
		fsr.fastest[key] = link
		fsr.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(key.from), T: simple.Node(key.to), W: tt})
	}
	return fsr
}

// getSPTree returns the shortest path tree rooted in the node with graph id 'from'.
// If the tree is found in the cache it is returned, if not it is computed, saved, and returned.
func (fsr *FreeSpeedRouter) getSPTree(from int64) path.Shortest {
	spTree, present := fsr.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(simple.Node(from), fsr.g)
	fsr.cachedSP[from] = spTree
	return spTree
}

// Route returns the ids of the links from fromLink to toLink, both included
func (fsr *FreeSpeedRouter) Route(fromLink, toLink string) ([]string, error) {
	src, dst := fsr.net.Link(fromLink), fsr.net.Link(toLink)
	if src == nil || dst == nil {
		return nil, errors.Wrapf(ErrRouteInconsistent, "route from %s to %s names an unknown link", fromLink, toLink)
	}
	if src == dst {
		return []string{fromLink}, nil
	}

	nodeIDs := fsr.NodePath(src.To.ID, dst.From.ID)
	if len(nodeIDs) == 0 {
		return nil, errors.Wrapf(ErrRouteInconsistent, "no route from link %s to link %s (%d links unreachable from %s)",
			fromLink, toLink, len(fsr.Unreachable(fromLink)), fromLink)
	}

	route := []string{fromLink}
	for idx := 1; idx < len(nodeIDs); idx++ {
		key := nodePair{from: int64(fsr.net.Node(nodeIDs[idx-1]).idx), to: int64(fsr.net.Node(nodeIDs[idx]).idx)}
		route = append(route, fsr.fastest[key].ID)
	}
	route = append(route, toLink)
	return route, nil
}

// Unreachable returns, for the given origin link, the ids of the links that no route reaches
func (fsr *FreeSpeedRouter) Unreachable(fromLink string) []string {
	src := fsr.net.Link(fromLink)
	if src == nil {
		return nil
	}
	spTree := fsr.getSPTree(int64(src.To.idx))

	rtn := []string{}
	for _, link := range fsr.net.Links() {
		if link == src {
			continue
		}
		if nodeSeq, _ := spTree.To(int64(link.From.idx)); len(nodeSeq) == 0 {
			rtn = append(rtn, link.ID)
		}
	}
	slices.Sort(rtn)
	return rtn
}

// convertNodeSeq extracts the network node ids from a sequence of graph nodes
func (fsr *FreeSpeedRouter) convertNodeSeq(nsQ []graph.Node) []string {
	nodes := fsr.net.Nodes()
	rtn := make([]string, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, nodes[node.ID()].ID)
	}
	return rtn
}

// NodePath returns the ids of the nodes on the fastest path between two nodes, empty when there is none
func (fsr *FreeSpeedRouter) NodePath(fromNode, toNode string) []string {
	src, dst := fsr.net.Node(fromNode), fsr.net.Node(toNode)
	if src == nil || dst == nil {
		return []string{}
	}
	nodeSeq, _ := fsr.getSPTree(int64(src.idx)).To(int64(dst.idx))
	return fsr.convertNodeSeq(nodeSeq)
}
