package qsim

// agent.go holds the drivers of vehicles.  The network asks a vehicle's driver
// where to go next; it never looks at routes itself.

// Driver is what the links and nodes need to know about whoever drives a vehicle
type Driver interface {
	// ID returns the driver's (agent's) id
	ID() string

	// CurrentLinkID returns the link the driver believes it is on
	CurrentLinkID() string

	// NextLinkID returns the link the driver wants to take after the current one.
	// The second return is false when the route has no further link.
	NextLinkID() (string, bool)

	// WantsToArrive reports whether the current link is where the driver ends its leg
	WantsToArrive() bool

	// NotifyMoveOverNode tells the driver it has crossed into the named link
	NotifyMoveOverNode(linkID string)
}

// TransitStop is a stop served by a transit driver
type TransitStop struct {
	ID     string
	LinkID string
	Dwell  float64
}

// TransitDriver is the capability of a driver that serves transit stops
type TransitDriver interface {
	Driver

	// NextTransitStop returns the next stop to serve, nil when there is none
	NextTransitStop() *TransitStop

	// HandleTransitStop is called when the vehicle is at the stop.  It returns
	// how many seconds longer the vehicle stays; zero means it departs and the
	// driver has moved on to its next stop.
	HandleTransitStop(stop *TransitStop, now float64) float64
}

type agentState int

const (
	agentAtActivity agentState = iota
	agentWaitingForVehicle
	agentInTraffic
	agentDone
	agentAborted
)

// Leg is one trip of an agent.  Route holds the id of every link from origin
// to destination, both included.
type Leg struct {
	Departure float64
	VehicleID string
	Route     []string
}

// Origin returns the first link of the leg's route
func (leg *Leg) Origin() string { return leg.Route[0] }

// Destination returns the last link of the leg's route
func (leg *Leg) Destination() string { return leg.Route[len(leg.Route)-1] }

// PlanAgent is a driver that follows a fixed sequence of legs
type PlanAgent struct {
	id       string
	legs     []*Leg
	legIdx   int
	routeIdx int
	state    agentState
}

// NewPlanAgent is a constructor
func NewPlanAgent(id string, legs []*Leg) *PlanAgent {
	return &PlanAgent{id: id, legs: legs}
}

func (pa *PlanAgent) ID() string { return pa.id }

// currentLeg returns the leg being (or about to be) travelled, nil when all legs are done
func (pa *PlanAgent) currentLeg() *Leg {
	if pa.legIdx >= len(pa.legs) {
		return nil
	}
	return pa.legs[pa.legIdx]
}

func (pa *PlanAgent) CurrentLinkID() string {
	leg := pa.currentLeg()
	if leg == nil {
		return ""
	}
	return leg.Route[pa.routeIdx]
}

func (pa *PlanAgent) NextLinkID() (string, bool) {
	leg := pa.currentLeg()
	if leg == nil || pa.routeIdx+1 >= len(leg.Route) {
		return "", false
	}
	return leg.Route[pa.routeIdx+1], true
}

func (pa *PlanAgent) WantsToArrive() bool {
	leg := pa.currentLeg()
	return leg != nil && pa.routeIdx == len(leg.Route)-1
}

func (pa *PlanAgent) NotifyMoveOverNode(linkID string) {
	pa.routeIdx++
}

// startLeg resets the route position for the current leg
func (pa *PlanAgent) startLeg() {
	pa.routeIdx = 0
}

// endLeg moves on to the next leg and returns it, nil when the plan is done
func (pa *PlanAgent) endLeg() *Leg {
	pa.legIdx++
	pa.routeIdx = 0
	return pa.currentLeg()
}

// TransitAgent is a PlanAgent that serves a sequence of transit stops on the way
type TransitAgent struct {
	*PlanAgent
	stops   []TransitStop
	stopIdx int
	atStop  bool
}

// NewTransitAgent is a constructor
func NewTransitAgent(id string, legs []*Leg, stops []TransitStop) *TransitAgent {
	return &TransitAgent{PlanAgent: NewPlanAgent(id, legs), stops: stops}
}

func (ta *TransitAgent) NextTransitStop() *TransitStop {
	if ta.stopIdx >= len(ta.stops) {
		return nil
	}
	return &ta.stops[ta.stopIdx]
}

func (ta *TransitAgent) HandleTransitStop(stop *TransitStop, now float64) float64 {
	if stop.Dwell <= 0 || ta.atStop {
		ta.atStop = false
		ta.stopIdx++
		return 0
	}
	ta.atStop = true
	return stop.Dwell
}

// planAgentOf digs the PlanAgent out of a driver built by BuildPopulation
func planAgentOf(d Driver) *PlanAgent {
	switch a := d.(type) {
	case *PlanAgent:
		return a
	case *TransitAgent:
		return a.PlanAgent
	}
	return nil
}
