package qsim

import (
	"strconv"
)

// NameType is a an entry in a dictionary created for a trace
// that maps object ids to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceInst is one traced event, with its time rendered for readers of the file
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	Event     Event  `json:"event" yaml:"event"`
}

// TraceManager gathers information about a simulation model and an execution
// of that model.  It is an EventHandler; the traces are kept per agent.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// id of the run traced
	RunID string `json:"runid" yaml:"runid"`

	// text name associated with each object id
	NameByID map[string]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, by agent id ("" for events without agent)
	Traces map[string][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[string]NameType)
	tm.Traces = make(map[string][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// HandleEvent creates a record of the event and stores it
func (tm *TraceManager) HandleEvent(ev Event) {
	if !tm.InUse {
		return
	}
	traceTime := strconv.FormatFloat(ev.Time, 'f', -1, 64)
	tm.Traces[ev.Agent] = append(tm.Traces[ev.Agent], TraceInst{TraceTime: traceTime, Event: ev})
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file.
// The return is false if the id is already present.
func (tm *TraceManager) AddName(id string, name string, objDesc string) bool {
	if !tm.InUse {
		return false
	}
	if _, present := tm.NameByID[id]; present {
		return false
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return true
}

// AddNetwork enters every node and link of the network into the dictionary
func (tm *TraceManager) AddNetwork(net *Network) {
	for _, node := range net.Nodes() {
		tm.AddName(node.ID, node.ID, "node")
	}
	for _, link := range net.Links() {
		tm.AddName(link.ID, link.From.ID+"->"+link.To.ID, "link")
	}
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.InUse {
		return nil
	}
	return writeDesc(filename, tm)
}
