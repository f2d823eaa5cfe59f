package qsim

// desc-net.go holds the serializable descriptions of a road network, of the
// signals placed on it, and of the time-variant changes made to its links.
// The structs here are designed for reading from and writing to yaml or json;
// BuildNetwork turns them into the run-time representation.

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// NodeDesc describes a network node.  Coordinates are only needed when
// some link leaves its length to be derived from them.
type NodeDesc struct {
	ID string  `json:"id" yaml:"id"`
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
}

// SignalDesc describes a fixed-time signal: within every cycle of Cycle seconds,
// shifted by Offset, the signal is green from GreenStart up to GreenEnd
type SignalDesc struct {
	Cycle      float64 `json:"cycle" yaml:"cycle"`
	Offset     float64 `json:"offset" yaml:"offset"`
	GreenStart float64 `json:"greenstart" yaml:"greenstart"`
	GreenEnd   float64 `json:"greenend" yaml:"greenend"`
}

// LaneDesc describes one lane of a multi-lane link.  Lanes are declared from the
// downstream end of the link; the entry lane (the part of the link adjacent to the
// upstream node) is implicit and covers what the declared lanes leave over.
// A lane either leads to further lanes of the same link (ToLanes) or to links
// leaving the downstream node (ToLinks).
type LaneDesc struct {
	ID       string      `json:"id" yaml:"id"`
	Length   float64     `json:"length" yaml:"length"`
	Lanes    float64     `json:"lanes" yaml:"lanes"`
	Capacity float64     `json:"capacity" yaml:"capacity"`
	ToLanes  []string    `json:"tolanes,omitempty" yaml:"tolanes,omitempty"`
	ToLinks  []string    `json:"tolinks,omitempty" yaml:"tolinks,omitempty"`
	Signal   *SignalDesc `json:"signal,omitempty" yaml:"signal,omitempty"`
}

// LinkDesc describes a directed link.  Capacity is in PCE per CapacityPeriod of the network.
// A zero Length is derived from the coordinates of the end nodes.
type LinkDesc struct {
	ID        string      `json:"id" yaml:"id"`
	From      string      `json:"from" yaml:"from"`
	To        string      `json:"to" yaml:"to"`
	Length    float64     `json:"length" yaml:"length"`
	FreeSpeed float64     `json:"freespeed" yaml:"freespeed"`
	Capacity  float64     `json:"capacity" yaml:"capacity"`
	Lanes     float64     `json:"lanes" yaml:"lanes"`
	LaneDefs  []LaneDesc  `json:"lanedefs,omitempty" yaml:"lanedefs,omitempty"`
	Signal    *SignalDesc `json:"signal,omitempty" yaml:"signal,omitempty"`
}

// NetworkDesc is the serializable network
type NetworkDesc struct {
	Name string `json:"name" yaml:"name"`

	// period (in seconds) the link capacities refer to, 3600 when absent
	CapacityPeriod float64 `json:"capacityperiod" yaml:"capacityperiod"`

	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
}

// CreateNetworkDesc is an initialization constructor
func CreateNetworkDesc(name string) *NetworkDesc {
	return &NetworkDesc{Name: name, CapacityPeriod: 3600.0, Nodes: []NodeDesc{}, Links: []LinkDesc{}}
}

// AddNode appends a node description
func (nd *NetworkDesc) AddNode(id string, x, y float64) {
	nd.Nodes = append(nd.Nodes, NodeDesc{ID: id, X: x, Y: y})
}

// AddLink appends a single-lane link description and returns a pointer to it,
// through which lanes or a signal may be added
func (nd *NetworkDesc) AddLink(id, from, to string, length, freeSpeed, capacity, lanes float64) *LinkDesc {
	nd.Links = append(nd.Links, LinkDesc{ID: id, From: from, To: to, Length: length,
		FreeSpeed: freeSpeed, Capacity: capacity, Lanes: lanes})
	return &nd.Links[len(nd.Links)-1]
}

// AddLane appends a lane description to the link
func (ld *LinkDesc) AddLane(lane LaneDesc) {
	ld.LaneDefs = append(ld.LaneDefs, lane)
}

// WriteToFile stores the NetworkDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (nd *NetworkDesc) WriteToFile(filename string) error {
	return writeDesc(filename, nd)
}

// ReadNetworkDesc deserializes a slice of bytes into a NetworkDesc.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  Error returned if
// any part of the process generates the error.
func ReadNetworkDesc(filename string, useYAML bool, dict []byte) (*NetworkDesc, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, serr := os.Stat(filename)
		if os.IsNotExist(serr) || (serr == nil && fileInfo.IsDir()) {
			return nil, fmt.Errorf("network %s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading network %s", filename)
		}
	}

	example := NetworkDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding network %s", filename)
	}
	if example.CapacityPeriod <= 0 {
		example.CapacityPeriod = 3600.0
	}
	return &example, nil
}

// ChangeValueDesc is one attribute change: Type is "absolute" (Value replaces
// the attribute) or "factor" (Value multiplies the attribute's base value)
type ChangeValueDesc struct {
	Type  string  `json:"type" yaml:"type"`
	Value float64 `json:"value" yaml:"value"`
}

// ChangeEventDesc changes attributes of a set of links from time Time on
type ChangeEventDesc struct {
	Time         float64          `json:"time" yaml:"time"`
	Links        []string         `json:"links" yaml:"links"`
	FlowCapacity *ChangeValueDesc `json:"flowcapacity,omitempty" yaml:"flowcapacity,omitempty"`
	FreeSpeed    *ChangeValueDesc `json:"freespeed,omitempty" yaml:"freespeed,omitempty"`
	Lanes        *ChangeValueDesc `json:"lanes,omitempty" yaml:"lanes,omitempty"`
}

// ChangeEventList is the serializable list of network change events
type ChangeEventList struct {
	Name   string            `json:"name" yaml:"name"`
	Events []ChangeEventDesc `json:"events" yaml:"events"`
}

// WriteToFile stores the ChangeEventList to the file whose name is given, as yaml or json
func (cel *ChangeEventList) WriteToFile(filename string) error {
	return writeDesc(filename, cel)
}

// ReadChangeEventList deserializes a ChangeEventList from dict, or from the named file when dict is empty
func ReadChangeEventList(filename string, useYAML bool, dict []byte) (*ChangeEventList, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading change events %s", filename)
		}
	}

	example := ChangeEventList{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding change events %s", filename)
	}
	return &example, nil
}
