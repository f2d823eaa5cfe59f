package qsim

// desc-plans.go holds the serializable description of the demand: vehicle types,
// vehicles with the link they are initially parked on, and agents with their legs

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// VehicleTypeDesc describes a class of vehicles.  PCE is the space a vehicle
// takes in storage, PCE/FlowEfficiency what it consumes of flow capacity.
type VehicleTypeDesc struct {
	ID             string  `json:"id" yaml:"id"`
	PCE            float64 `json:"pce" yaml:"pce"`
	FlowEfficiency float64 `json:"flowefficiency" yaml:"flowefficiency"`
	MaxSpeed       float64 `json:"maxspeed" yaml:"maxspeed"`
}

// VehicleDesc places a vehicle of the named type on a link before the simulation starts
type VehicleDesc struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
	Link string `json:"link" yaml:"link"`
}

// LegDesc is one car trip.  Route lists every link from the origin to the destination,
// both included.  When Route is empty it is computed from Origin and Destination.
type LegDesc struct {
	Departure   float64  `json:"departure" yaml:"departure"`
	Vehicle     string   `json:"vehicle" yaml:"vehicle"`
	Origin      string   `json:"origin,omitempty" yaml:"origin,omitempty"`
	Destination string   `json:"destination,omitempty" yaml:"destination,omitempty"`
	Route       []string `json:"route,omitempty" yaml:"route,omitempty"`
}

// StopDesc is a transit stop served by an agent, on link Link, with Dwell seconds of dwell time
type StopDesc struct {
	ID    string  `json:"id" yaml:"id"`
	Link  string  `json:"link" yaml:"link"`
	Dwell float64 `json:"dwell" yaml:"dwell"`
}

// AgentDesc describes a traveller.  An agent with Stops drives a transit vehicle
// and serves the stops, in order, along its legs.
type AgentDesc struct {
	ID    string     `json:"id" yaml:"id"`
	Legs  []LegDesc  `json:"legs" yaml:"legs"`
	Stops []StopDesc `json:"stops,omitempty" yaml:"stops,omitempty"`
}

// PlansDesc is the serializable demand
type PlansDesc struct {
	Name         string            `json:"name" yaml:"name"`
	VehicleTypes []VehicleTypeDesc `json:"vehicletypes" yaml:"vehicletypes"`
	Vehicles     []VehicleDesc     `json:"vehicles" yaml:"vehicles"`
	Agents       []AgentDesc       `json:"agents" yaml:"agents"`
}

// CreatePlansDesc is an initialization constructor.  It carries a "car" vehicle type
func CreatePlansDesc(name string) *PlansDesc {
	pd := new(PlansDesc)
	pd.Name = name
	pd.VehicleTypes = []VehicleTypeDesc{{ID: DefaultVehicleType, PCE: 1.0, FlowEfficiency: 1.0, MaxSpeed: 0.0}}
	pd.Vehicles = []VehicleDesc{}
	pd.Agents = []AgentDesc{}
	return pd
}

// AddVehicle places a vehicle on a link
func (pd *PlansDesc) AddVehicle(id, vehType, link string) {
	pd.Vehicles = append(pd.Vehicles, VehicleDesc{ID: id, Type: vehType, Link: link})
}

// AddAgent appends an agent and returns a pointer through which legs and stops are added
func (pd *PlansDesc) AddAgent(id string) *AgentDesc {
	pd.Agents = append(pd.Agents, AgentDesc{ID: id, Legs: []LegDesc{}})
	return &pd.Agents[len(pd.Agents)-1]
}

// AddLeg appends a leg with an explicit route
func (ad *AgentDesc) AddLeg(departure float64, vehicle string, route ...string) {
	ad.Legs = append(ad.Legs, LegDesc{Departure: departure, Vehicle: vehicle, Route: route})
}

// WriteToFile stores the PlansDesc to the file whose name is given, as yaml or json
func (pd *PlansDesc) WriteToFile(filename string) error {
	return writeDesc(filename, pd)
}

// ReadPlansDesc deserializes a PlansDesc from dict, or from the named file when dict is empty
func ReadPlansDesc(filename string, useYAML bool, dict []byte) (*PlansDesc, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading plans %s", filename)
		}
	}

	example := PlansDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding plans %s", filename)
	}
	return &example, nil
}
