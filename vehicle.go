package qsim

import (
	"fmt"
	"math"
)

// DefaultVehicleType names the vehicle type used when a vehicle names none
const DefaultVehicleType = "car"

// VehicleType describes a class of vehicles
type VehicleType struct {
	ID             string
	PCE            float64 // storage taken, in passenger car equivalents
	FlowEfficiency float64 // divides PCE to give the flow capacity consumed
	MaxSpeed       float64 // m/s, non-positive means unlimited
}

// flowSize is the flow capacity a vehicle of this type consumes when it passes the buffer
func (vt *VehicleType) flowSize() float64 {
	if vt.FlowEfficiency <= 0 {
		return vt.PCE
	}
	return vt.PCE / vt.FlowEfficiency
}

// maxSpeed returns MaxSpeed, with non-positive values meaning unlimited
func (vt *VehicleType) maxSpeed() float64 {
	if vt.MaxSpeed <= 0 {
		return math.Inf(1)
	}
	return vt.MaxSpeed
}

// VehicleLocation names the one container a vehicle is in
type VehicleLocation int

const (
	LocUnplaced VehicleLocation = iota
	LocParked                   // parked on a link, not in traffic
	LocWaiting                  // in a link's waiting list, about to enter traffic
	LocQueued                   // in a lane's driving queue
	LocAtStop                   // dwelling at a transit stop beside a lane
	LocBuffered                 // in a lane's buffer, waiting to cross the downstream node
	LocAborted                  // removed from the simulation
)

var locToStr = map[VehicleLocation]string{
	LocUnplaced: "unplaced",
	LocParked:   "parked",
	LocWaiting:  "waiting",
	LocQueued:   "queued",
	LocAtStop:   "atStop",
	LocBuffered: "buffered",
	LocAborted:  "aborted",
}

func (loc VehicleLocation) String() string {
	return locToStr[loc]
}

// legalMoves lists, for every location, the locations a vehicle may move to from it
var legalMoves = map[VehicleLocation][]VehicleLocation{
	LocUnplaced: {LocParked},
	LocParked:   {LocParked, LocWaiting, LocAborted},
	LocWaiting:  {LocBuffered, LocAborted},
	LocQueued:   {LocBuffered, LocAtStop, LocParked, LocAborted},
	LocAtStop:   {LocQueued, LocAborted},
	LocBuffered: {LocQueued, LocParked, LocAborted},
	LocAborted:  {},
}

// Vehicle is a vehicle moving through (or parked on) the network.  Its
// location is only ever changed through moveTo, so that a vehicle is
// always in exactly one container.
type Vehicle struct {
	ID   string
	Type *VehicleType

	driver       Driver
	loc          VehicleLocation
	link         *Link
	lane         *Lane
	earliestExit float64
}

// NewVehicle is a constructor.  The vehicle is unplaced until it is parked.
func NewVehicle(id string, vt *VehicleType) *Vehicle {
	return &Vehicle{ID: id, Type: vt, loc: LocUnplaced}
}

// moveTo places the vehicle in a new container.  Moving along an edge
// that legalMoves does not list is a programming error, and panics.
func (veh *Vehicle) moveTo(loc VehicleLocation, link *Link, lane *Lane) {
	legal := false
	for _, next := range legalMoves[veh.loc] {
		if next == loc {
			legal = true
			break
		}
	}
	if !legal {
		panic(fmt.Errorf("vehicle %s cannot move from %s to %s", veh.ID, veh.loc, loc))
	}
	veh.loc = loc
	veh.link = link
	veh.lane = lane
}

func (veh *Vehicle) Location() VehicleLocation { return veh.loc }
func (veh *Vehicle) Driver() Driver            { return veh.driver }

// LinkID returns the id of the link the vehicle is on, "" when it is on none
func (veh *Vehicle) LinkID() string {
	if veh.link == nil {
		return ""
	}
	return veh.link.ID
}

// pce is the storage the vehicle takes
func (veh *Vehicle) pce() float64 {
	return veh.Type.PCE
}
