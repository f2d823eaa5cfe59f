package qsim

// population.go turns the description of the demand into agents and vehicles

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Router computes the links from one link to another, both included
type Router interface {
	Route(fromLink, toLink string) ([]string, error)
}

// Population holds the agents and vehicles of a simulation
type Population struct {
	agents     []Driver
	vehicles   map[string]*Vehicle
	vehicleSeq []*Vehicle // in declaration order
	types      map[string]*VehicleType
}

// Agents returns the agents, in declaration order
func (pop *Population) Agents() []Driver { return pop.agents }

// Vehicle returns the vehicle with the given id, nil if there is none
func (pop *Population) Vehicle(id string) *Vehicle { return pop.vehicles[id] }

// Vehicles returns the vehicles, in declaration order
func (pop *Population) Vehicles() []*Vehicle { return pop.vehicleSeq }

// BuildPopulation creates agents and vehicles from desc, checked against net.  Legs
// without a route are routed by router; a nil router makes them an error.  A vehicle
// used by a leg but not declared is created with the default type, parked at the
// origin of the first leg that uses it.
func BuildPopulation(desc *PlansDesc, net *Network, router Router) (*Population, error) {
	pop := &Population{vehicles: make(map[string]*Vehicle)}

	pop.types = lo.SliceToMap(desc.VehicleTypes, func(vtd VehicleTypeDesc) (string, *VehicleType) {
		return vtd.ID, &VehicleType{ID: vtd.ID, PCE: vtd.PCE, FlowEfficiency: vtd.FlowEfficiency, MaxSpeed: vtd.MaxSpeed}
	})
	if _, present := pop.types[DefaultVehicleType]; !present {
		pop.types[DefaultVehicleType] = &VehicleType{ID: DefaultVehicleType, PCE: 1.0, FlowEfficiency: 1.0}
	}
	for _, vt := range pop.types {
		if vt.PCE <= 0 {
			vt.PCE = 1.0
		}
		if vt.FlowEfficiency <= 0 {
			vt.FlowEfficiency = 1.0
		}
	}

	for _, vd := range desc.Vehicles {
		if _, present := pop.vehicles[vd.ID]; present {
			return nil, errors.Errorf("vehicle %s declared twice", vd.ID)
		}
		typeID := vd.Type
		if typeID == "" {
			typeID = DefaultVehicleType
		}
		vt := pop.types[typeID]
		if vt == nil {
			return nil, errors.Errorf("vehicle %s has unknown type %s", vd.ID, vd.Type)
		}
		if net.Link(vd.Link) == nil {
			return nil, errors.Wrapf(ErrBadTopology, "vehicle %s parked on unknown link %s", vd.ID, vd.Link)
		}
		pop.addVehicle(NewVehicle(vd.ID, vt), net.Link(vd.Link))
	}

	seen := make(map[string]bool)
	for idx := range desc.Agents {
		ad := &desc.Agents[idx]
		if seen[ad.ID] {
			return nil, errors.Errorf("agent %s declared twice", ad.ID)
		}
		seen[ad.ID] = true

		legs := make([]*Leg, 0, len(ad.Legs))
		for legIdx := range ad.Legs {
			leg, err := pop.buildLeg(ad.ID, &ad.Legs[legIdx], net, router)
			if err != nil {
				return nil, errors.Wrapf(err, "agent %s leg %d", ad.ID, legIdx)
			}
			legs = append(legs, leg)
		}

		if len(ad.Stops) == 0 {
			pop.agents = append(pop.agents, NewPlanAgent(ad.ID, legs))
			continue
		}
		stops := make([]TransitStop, 0, len(ad.Stops))
		for _, sd := range ad.Stops {
			if net.Link(sd.Link) == nil {
				return nil, errors.Wrapf(ErrBadTopology, "agent %s stop %s on unknown link %s", ad.ID, sd.ID, sd.Link)
			}
			stops = append(stops, TransitStop{ID: sd.ID, LinkID: sd.Link, Dwell: sd.Dwell})
		}
		pop.agents = append(pop.agents, NewTransitAgent(ad.ID, legs, stops))
	}
	return pop, nil
}

func (pop *Population) addVehicle(veh *Vehicle, link *Link) {
	veh.link = link
	pop.vehicles[veh.ID] = veh
	pop.vehicleSeq = append(pop.vehicleSeq, veh)
}

// buildLeg checks a leg description and completes its route
func (pop *Population) buildLeg(agentID string, ld *LegDesc, net *Network, router Router) (*Leg, error) {
	route := append([]string{}, ld.Route...)
	if len(route) == 0 {
		if ld.Origin == "" || ld.Destination == "" {
			return nil, errors.New("leg has neither route nor origin and destination")
		}
		if ld.Origin == ld.Destination {
			route = []string{ld.Origin}
		} else {
			if router == nil {
				return nil, errors.Errorf("no router to route from %s to %s", ld.Origin, ld.Destination)
			}
			var err error
			route, err = router.Route(ld.Origin, ld.Destination)
			if err != nil {
				return nil, err
			}
		}
	}
	for _, id := range route {
		if net.Link(id) == nil {
			return nil, errors.Wrapf(ErrRouteInconsistent, "route names unknown link %s", id)
		}
	}

	vehID := ld.Vehicle
	if vehID == "" {
		vehID = agentID
	}
	if pop.vehicles[vehID] == nil {
		pop.addVehicle(NewVehicle(vehID, pop.types[DefaultVehicleType]), net.Link(route[0]))
	}
	return &Leg{Departure: ld.Departure, VehicleID: vehID, Route: route}, nil
}
