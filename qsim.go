package qsim

// qsim.go has code that builds a scenario, the network, population and engine
// of a run, from its input files

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Scenario holds what BuildScenario assembles from the input files
type Scenario struct {
	Config  *Config
	Network *Network
	Pop     *Population
	Changes []*ChangeEvent
	Engine  *Engine
	Trace   *TraceManager
}

// GetScenarioDicts accepts a map that binds the keys "network", "plans", "config"
// and "changes" to input file names, and reads the descriptions they hold.  Only
// "network" and "plans" are required; without "config" the defaults are used.
// Each file is read as yaml or json by its extension.
func GetScenarioDicts(syn map[string]string) (*NetworkDesc, *PlansDesc, *Config, *ChangeEventList, error) {
	var empty []byte = make([]byte, 0)

	if syn["network"] == "" || syn["plans"] == "" {
		return nil, nil, nil, nil, errors.Wrap(ErrBadConfig, "network and plans files are required")
	}

	nd, err := ReadNetworkDesc(syn["network"], useYAMLFor(syn["network"]), empty)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	pd, err := ReadPlansDesc(syn["plans"], useYAMLFor(syn["plans"]), empty)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	cfg := DefaultConfig()
	if syn["config"] != "" {
		if cfg, err = ReadConfig(syn["config"], useYAMLFor(syn["config"]), empty); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	var cel *ChangeEventList
	if syn["changes"] != "" {
		if cel, err = ReadChangeEventList(syn["changes"], useYAMLFor(syn["changes"]), empty); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return nd, pd, cfg, cel, nil
}

// BuildScenario is called from the module that creates and runs a simulation.  Its
// inputs identify the names of input files, which it uses to assemble the network,
// the population and an engine ready to run.  A non-nil cfg replaces the "config"
// file.  When trace is true every event of the run is gathered in Scenario.Trace.
func BuildScenario(syn map[string]string, cfg *Config, trace bool, log *logrus.Entry) (*Scenario, error) {
	nd, pd, fileCfg, cel, err := GetScenarioDicts(syn)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = fileCfg
	}
	return BuildScenarioFromDicts(nd, pd, cfg, cel, trace, log)
}

// BuildScenarioFromDicts assembles a scenario from descriptions already read,
// e.g. by GetScenarioDicts.  cel may be nil.
func BuildScenarioFromDicts(nd *NetworkDesc, pd *PlansDesc, cfg *Config, cel *ChangeEventList,
	trace bool, log *logrus.Entry) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	var err error
	sc := &Scenario{Config: cfg}
	warner := NewWarner(log, cfg.WarnLimit)

	if sc.Network, err = BuildNetwork(nd, cfg, warner); err != nil {
		return nil, errors.Wrapf(err, "building network %s", nd.Name)
	}
	if sc.Pop, err = BuildPopulation(pd, sc.Network, NewFreeSpeedRouter(sc.Network)); err != nil {
		return nil, errors.Wrapf(err, "building population %s", pd.Name)
	}
	if sc.Changes, err = ResolveChangeEvents(cel, sc.Network, nd.CapacityPeriod); err != nil {
		return nil, errors.Wrap(err, "resolving change events")
	}

	opts := []EngineOption{WithLogger(log), WithWarner(warner), WithChangeEvents(sc.Changes)}
	sc.Trace = CreateTraceManager(nd.Name+"/"+pd.Name, trace)
	if sc.Trace.Active() {
		sc.Trace.AddNetwork(sc.Network)
		opts = append(opts, WithEventHandler(sc.Trace))
	}

	if sc.Engine, err = NewEngine(sc.Network, sc.Pop, cfg, opts...); err != nil {
		return nil, err
	}
	sc.Trace.RunID = sc.Engine.RunID()
	return sc, nil
}
