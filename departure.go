package qsim

// departure.go binds departing agents to their vehicles, and parks arriving vehicles

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// depart starts the current leg of an agent.  When the leg's vehicle is not
// parked on the origin link the configured vehicle behavior decides what happens.
func (e *Engine) depart(agent Driver, now float64) error {
	pa := planAgentOf(agent)
	leg := pa.currentLeg()
	link := e.net.Link(leg.Origin())
	pa.startLeg()

	e.emit(Event{Time: now, Kind: EvtDeparture, Agent: agent.ID(), Link: link.ID})

	// a leg that starts where it ends arrives at once, without its vehicle
	if len(leg.Route) == 1 {
		e.emit(Event{Time: now, Kind: EvtArrival, Agent: agent.ID(), Link: link.ID})
		e.legDone(agent, now)
		return nil
	}

	veh := e.parking.unpark(leg.VehicleID, link.ID)
	if veh == nil {
		switch e.cfg.VehicleBehavior {
		case BehaviorTeleport:
			var err error
			if veh, err = e.teleport(leg.VehicleID, link, agent, now); err != nil {
				return err
			}
		case BehaviorWait:
			pa.state = agentWaitingForVehicle
			e.parking.registerWaiting(link.ID, leg.VehicleID, agent)
			return nil
		default:
			return errors.Wrapf(ErrVehicleMissing, "vehicle %s of agent %s is not parked on link %s at %v",
				leg.VehicleID, agent.ID(), link.ID, now)
		}
	}
	e.enterTraffic(agent, veh, link, now)
	return nil
}

// teleport moves a parked vehicle to the link.  A vehicle that is in use or unknown is fatal.
func (e *Engine) teleport(vehID string, link *Link, agent Driver, now float64) (*Vehicle, error) {
	veh := e.pop.Vehicle(vehID)
	if veh == nil {
		return nil, errors.Wrapf(ErrVehicleMissing, "agent %s needs unknown vehicle %s", agent.ID(), vehID)
	}
	if veh.loc != LocParked {
		return nil, errors.Wrapf(ErrVehicleMissing, "agent %s needs vehicle %s, which is %s on link %s",
			agent.ID(), vehID, veh.loc, veh.LinkID())
	}
	from := veh.LinkID()
	e.parking.unpark(vehID, from)
	e.warner.Warnf("teleport", logrus.Fields{"agent": agent.ID(), "vehicle": vehID},
		"teleporting vehicle %s from link %s to link %s at %v", vehID, from, link.ID, now)
	veh.moveTo(LocParked, link, nil)
	return veh, nil
}

// enterTraffic seats the agent in the vehicle and puts the vehicle in the waiting list of the link
func (e *Engine) enterTraffic(agent Driver, veh *Vehicle, link *Link, now float64) {
	pa := planAgentOf(agent)
	pa.state = agentInTraffic
	veh.driver = agent
	e.emit(Event{Time: now, Kind: EvtPersonEntersVehicle, Agent: agent.ID(), Vehicle: veh.ID})
	link.addDepartingVehicle(veh)
	e.emit(Event{Time: now, Kind: EvtWaitToLink, Agent: agent.ID(), Vehicle: veh.ID, Link: link.ID})
	e.activateLink(link)
}

// arrive parks a vehicle whose driver has reached the end of its leg.  An agent
// waiting on the link for this vehicle departs with it at once.
func (e *Engine) arrive(veh *Vehicle, link *Link, now float64) {
	agent := veh.driver
	veh.driver = nil

	e.emit(Event{Time: now, Kind: EvtVehicleLeavesTraffic, Agent: agent.ID(), Vehicle: veh.ID, Link: link.ID})
	e.emit(Event{Time: now, Kind: EvtPersonLeavesVehicle, Agent: agent.ID(), Vehicle: veh.ID})
	e.emit(Event{Time: now, Kind: EvtArrival, Agent: agent.ID(), Link: link.ID})

	waiters := e.parking.park(veh, link)
	if len(waiters) > 0 {
		e.parking.unpark(veh.ID, link.ID)
		e.parking.requeueWaiting(link.ID, veh.ID, waiters[1:])
		e.enterTraffic(waiters[0], veh, link, now)
	}
	e.legDone(agent, now)
}

// legDone schedules the agent's next leg, or retires the agent when it has none
func (e *Engine) legDone(agent Driver, now float64) {
	pa := planAgentOf(agent)
	next := pa.endLeg()
	if next == nil {
		e.retire(pa, agentDone)
		return
	}
	pa.state = agentAtActivity
	e.departures.Schedule(agent, math.Max(now, next.Departure))
}
