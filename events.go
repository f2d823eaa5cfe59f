package qsim

// EventKind names what an Event reports
type EventKind string

const (
	EvtLinkEnter              EventKind = "entered link"
	EvtLinkLeave              EventKind = "left link"
	EvtLaneEnter              EventKind = "entered lane"
	EvtLaneLeave              EventKind = "left lane"
	EvtDeparture              EventKind = "departure"
	EvtArrival                EventKind = "arrival"
	EvtWaitToLink             EventKind = "wait2link"
	EvtStuck                  EventKind = "stuckAndAbort"
	EvtVehicleLeavesTraffic   EventKind = "vehicle leaves traffic"
	EvtPersonEntersVehicle    EventKind = "PersonEntersVehicle"
	EvtPersonLeavesVehicle    EventKind = "PersonLeavesVehicle"
	EvtTransitArrivesAtStop   EventKind = "VehicleArrivesAtFacility"
	EvtTransitDepartsFromStop EventKind = "VehicleDepartsAtFacility"
)

// Event is one observable thing that happened to an agent or vehicle
type Event struct {
	Time    float64   `json:"time" yaml:"time"`
	Kind    EventKind `json:"type" yaml:"type"`
	Agent   string    `json:"person,omitempty" yaml:"person,omitempty"`
	Vehicle string    `json:"vehicle,omitempty" yaml:"vehicle,omitempty"`
	Link    string    `json:"link,omitempty" yaml:"link,omitempty"`
	Lane    string    `json:"lane,omitempty" yaml:"lane,omitempty"`
	Stop    string    `json:"facility,omitempty" yaml:"facility,omitempty"`
	Delay   float64   `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// EventHandler receives every event of a run, in emission order, from one goroutine
type EventHandler interface {
	HandleEvent(ev Event)
}

// EventHandlerFunc adapts a function to an EventHandler
type EventHandlerFunc func(ev Event)

func (f EventHandlerFunc) HandleEvent(ev Event) { f(ev) }

// EventCollector keeps every event it is handed
type EventCollector struct {
	Events []Event
}

func (ec *EventCollector) HandleEvent(ev Event) {
	ec.Events = append(ec.Events, ev)
}

// OfKind returns the collected events of the given kind, in order
func (ec *EventCollector) OfKind(kind EventKind) []Event {
	rtn := []Event{}
	for _, ev := range ec.Events {
		if ev.Kind == kind {
			rtn = append(rtn, ev)
		}
	}
	return rtn
}

// eventBuffer gathers the events of one partition during a parallel phase.
// The engine hands the buffers to the handlers, partition by partition, once
// every worker has passed the barrier.
type eventBuffer struct {
	events []Event
}

func (eb *eventBuffer) add(ev Event) {
	eb.events = append(eb.events, ev)
}

// flush passes the buffered events to the handlers and empties the buffer
func (eb *eventBuffer) flush(handlers []EventHandler) {
	for _, ev := range eb.events {
		for _, h := range handlers {
			h.HandleEvent(ev)
		}
	}
	eb.events = eb.events[:0]
}
