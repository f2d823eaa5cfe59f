package qsim

// config.go holds the run-time parameters of a simulation run, together with
// the functions that read them from (and write them to) yaml or json files

import (
	"encoding/json"
	"math"
	"os"
	"path"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// VehicleBehavior selects what happens when an agent departs and its vehicle is not parked on the departure link
type VehicleBehavior string

const (
	// BehaviorTeleport moves the vehicle to the departure link (logged, rate-limited)
	BehaviorTeleport VehicleBehavior = "teleport"

	// BehaviorWait parks the agent until the vehicle arrives on the departure link
	BehaviorWait VehicleBehavior = "wait"

	// BehaviorFail aborts the simulation
	BehaviorFail VehicleBehavior = "exception"
)

// TrafficDynamics selects between the plain queue model and the model with spillback holes
type TrafficDynamics string

const (
	DynamicsQueue     TrafficDynamics = "queue"
	DynamicsWithHoles TrafficDynamics = "withHoles"
)

// NodeOrder selects the order in which a node visits its inbound links
type NodeOrder string

const (
	// NodeOrderCapacityWeighted draws the order at random, weighted by link flow capacity
	NodeOrderCapacityWeighted NodeOrder = "capacityWeighted"

	// NodeOrderFixed visits inbound links in id order
	NodeOrderFixed NodeOrder = "fixed"
)

// Config carries every parameter of a simulation run.  The zero value is not
// usable, start from DefaultConfig()
type Config struct {
	// length of one simulation step, in seconds
	StepSize float64 `json:"stepsize" yaml:"stepsize"`

	// simulation time of the first step, and the time after which no step is run.
	// EndTime <= 0 means run until every agent has finished
	StartTime float64 `json:"starttime" yaml:"starttime"`
	EndTime   float64 `json:"endtime" yaml:"endtime"`

	// scale factors applied to every link's flow and storage capacity
	FlowCapFactor    float64 `json:"flowcapfactor" yaml:"flowcapfactor"`
	StorageCapFactor float64 `json:"storagecapfactor" yaml:"storagecapfactor"`

	// space one PCE occupies on a lane, in meters
	EffectiveCellSize float64 `json:"effectivecellsize" yaml:"effectivecellsize"`

	// seconds a buffer head may be blocked before it is declared stuck
	StuckTime float64 `json:"stucktime" yaml:"stucktime"`

	// when true stuck vehicles are removed and reported stuck.  When false they are
	// pushed onto their next link whatever its storage, which may overfill it.
	RemoveStuckVehicles bool `json:"removestuckvehicles" yaml:"removestuckvehicles"`

	VehicleBehavior VehicleBehavior `json:"vehiclebehavior" yaml:"vehiclebehavior"`

	// number of partitions, each served by its own goroutine
	Workers int `json:"workers" yaml:"workers"`

	TrafficDynamics TrafficDynamics `json:"trafficdynamics" yaml:"trafficdynamics"`

	// speed at which holes travel upstream, in km/h
	HoleSpeed float64 `json:"holespeed" yaml:"holespeed"`

	// when true the waiting list drains into the buffer before the driving queue does
	InsertWaitingBeforeDriving bool `json:"insertwaitingbeforedriving" yaml:"insertwaitingbeforedriving"`

	// emit lane-enter/lane-leave events on links with more than one lane
	UseLaneEvents bool `json:"uselaneevents" yaml:"uselaneevents"`

	NodeOrder NodeOrder `json:"nodeorder" yaml:"nodeorder"`

	// seeds the random number streams of the nodes; equal seeds give equal runs
	Seed string `json:"seed" yaml:"seed"`

	// number of times a rate-limited warning is logged before it is suppressed
	WarnLimit int `json:"warnlimit" yaml:"warnlimit"`

	// number of steps between heartbeat log lines, 0 turns them off
	HeartbeatInterval int `json:"heartbeatinterval" yaml:"heartbeatinterval"`

	// link lengths derived from node coordinates use this system, "euclidean" or "wgs84"
	CoordSystem string `json:"coordsystem" yaml:"coordsystem"`
}

// DefaultConfig returns the parameter set used when nothing else is said
func DefaultConfig() *Config {
	return &Config{
		StepSize:            1.0,
		StartTime:           0.0,
		EndTime:             0.0,
		FlowCapFactor:       1.0,
		StorageCapFactor:    1.0,
		EffectiveCellSize:   7.5,
		StuckTime:           10.0,
		RemoveStuckVehicles: true,
		VehicleBehavior:     BehaviorTeleport,
		Workers:             1,
		TrafficDynamics:     DynamicsQueue,
		HoleSpeed:           15.0,
		UseLaneEvents:       true,
		NodeOrder:           NodeOrderCapacityWeighted,
		Seed:                "qsim",
		WarnLimit:           10,
		HeartbeatInterval:   3600,
		CoordSystem:         "euclidean",
	}
}

// Validate returns an error wrapping ErrBadConfig naming the first offending parameter
func (cfg *Config) Validate() error {
	positive := func(name string, v float64) error {
		if !(v > 0) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrBadConfig, "%s must be positive and finite, is %v", name, v)
		}
		return nil
	}

	for _, chk := range []struct {
		name string
		v    float64
	}{
		{"stepsize", cfg.StepSize},
		{"flowcapfactor", cfg.FlowCapFactor},
		{"storagecapfactor", cfg.StorageCapFactor},
		{"effectivecellsize", cfg.EffectiveCellSize},
		{"stucktime", cfg.StuckTime},
	} {
		if err := positive(chk.name, chk.v); err != nil {
			return err
		}
	}

	if cfg.EndTime > 0 && cfg.EndTime < cfg.StartTime {
		return errors.Wrapf(ErrBadConfig, "endtime %v precedes starttime %v", cfg.EndTime, cfg.StartTime)
	}
	if cfg.Workers < 1 {
		return errors.Wrapf(ErrBadConfig, "workers must be at least 1, is %d", cfg.Workers)
	}

	switch cfg.VehicleBehavior {
	case BehaviorTeleport, BehaviorWait, BehaviorFail:
	default:
		return errors.Wrapf(ErrBadConfig, "unknown vehiclebehavior %q", cfg.VehicleBehavior)
	}

	switch cfg.TrafficDynamics {
	case DynamicsQueue:
	case DynamicsWithHoles:
		if err := positive("holespeed", cfg.HoleSpeed); err != nil {
			return err
		}
	default:
		return errors.Wrapf(ErrBadConfig, "unknown trafficdynamics %q", cfg.TrafficDynamics)
	}

	switch cfg.NodeOrder {
	case NodeOrderCapacityWeighted, NodeOrderFixed:
	default:
		return errors.Wrapf(ErrBadConfig, "unknown nodeorder %q", cfg.NodeOrder)
	}

	switch cfg.CoordSystem {
	case "euclidean", "wgs84":
	default:
		return errors.Wrapf(ErrBadConfig, "unknown coordsystem %q", cfg.CoordSystem)
	}
	return nil
}

// useHoles reports whether spillback holes are modelled
func (cfg *Config) useHoles() bool {
	return cfg.TrafficDynamics == DynamicsWithHoles
}

// holeSpeedPerSec converts the configured hole speed to m/s
func (cfg *Config) holeSpeedPerSec() float64 {
	return cfg.HoleSpeed / 3.6
}

// WriteToFile stores the Config struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *Config) WriteToFile(filename string) error {
	return writeDesc(filename, cfg)
}

// ReadConfig deserializes a byte slice holding a representation of a Config struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  Parameters absent from the input keep their DefaultConfig() values.
func ReadConfig(filename string, useYAML bool, dict []byte) (*Config, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading configuration %s", filename)
		}
	}

	cfg := DefaultConfig()
	if useYAML {
		err = yaml.Unmarshal(dict, cfg)
	} else {
		err = json.Unmarshal(dict, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding configuration %s", filename)
	}
	return cfg, nil
}

// writeDesc serializes any descriptor to yaml or json, by the extension of filename
func writeDesc(filename string, desc any) error {
	var bytes []byte
	var err error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, err = yaml.Marshal(desc)
	case ".json", ".JSON":
		bytes, err = json.MarshalIndent(desc, "", "\t")
	default:
		return errors.Errorf("cannot infer encoding from extension of %s", filename)
	}
	if err != nil {
		return errors.Wrapf(err, "encoding %s", filename)
	}
	return errors.Wrapf(os.WriteFile(filename, bytes, 0o644), "writing %s", filename)
}

// useYAMLFor reports whether a file name carries a yaml extension
func useYAMLFor(filename string) bool {
	ext := path.Ext(filename)
	return (ext == ".yaml") || (ext == ".yml") || (ext == ".YAML")
}
