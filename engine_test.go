package qsim

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// runScenario builds network, population and engine and runs them to the end
func runScenario(t *testing.T, nd *NetworkDesc, pd *PlansDesc, cfg *Config, cel *ChangeEventList) (*Engine, *EventCollector, *test.Hook, error) {
	t.Helper()
	return runObserved(t, nd, pd, cfg, cel, nil)
}

// runObserved is runScenario with observe called on every event, while no
// partition is stepping, so that it may inspect the network
func runObserved(t *testing.T, nd *NetworkDesc, pd *PlansDesc, cfg *Config, cel *ChangeEventList,
	observe func(net *Network, ev Event)) (*Engine, *EventCollector, *test.Hook, error) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	net, err := BuildNetwork(nd, cfg, NewWarner(log, cfg.WarnLimit))
	if err != nil {
		t.Fatalf("building network: %v", err)
	}
	pop, err := BuildPopulation(pd, net, NewFreeSpeedRouter(net))
	if err != nil {
		t.Fatalf("building population: %v", err)
	}
	ces, err := ResolveChangeEvents(cel, net, nd.CapacityPeriod)
	if err != nil {
		t.Fatalf("resolving change events: %v", err)
	}
	ec := &EventCollector{}
	opts := []EngineOption{WithLogger(log), WithEventHandler(ec), WithChangeEvents(ces), WithRunID("test")}
	if observe != nil {
		opts = append(opts, WithEventHandler(EventHandlerFunc(func(ev Event) { observe(net, ev) })))
	}
	eng, err := NewEngine(net, pop, cfg, opts...)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	err = eng.Run(context.Background())
	return eng, ec, hook, err
}

// findEvent returns the index of the first event of the kind for the agent on the link, -1 if there is none
func findEvent(ec *EventCollector, kind EventKind, agent, link string) int {
	for idx, ev := range ec.Events {
		if ev.Kind == kind && ev.Agent == agent && (link == "" || ev.Link == link) {
			return idx
		}
	}
	return -1
}

func eventTime(t *testing.T, ec *EventCollector, kind EventKind, agent, link string) float64 {
	t.Helper()
	idx := findEvent(ec, kind, agent, link)
	if idx < 0 {
		t.Fatalf("no %q event of %s on %s", kind, agent, link)
	}
	return ec.Events[idx].Time
}

func TestSingleVehicle(t *testing.T) {
	pd := CreatePlansDesc("single")
	pd.AddAgent("p").AddLeg(0, "", "L0", "L1", "L2")

	eng, ec, _, err := runScenario(t, lineDesc(3), pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if tm := eventTime(t, ec, EvtLinkEnter, "p", "L1"); tm != 0 {
		t.Errorf("entered L1 at %v, want 0", tm)
	}
	if tm := eventTime(t, ec, EvtLinkEnter, "p", "L2"); tm != 10 {
		t.Errorf("entered L2 at %v, want 10", tm)
	}
	if tm := eventTime(t, ec, EvtArrival, "p", "L2"); tm != 20 {
		t.Errorf("arrived at %v, want 20", tm)
	}

	kinds := []EventKind{}
	for _, ev := range ec.Events {
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EvtDeparture, EvtPersonEntersVehicle, EvtWaitToLink, EvtLinkLeave, EvtLinkEnter,
		EvtLinkLeave, EvtLinkEnter, EvtVehicleLeavesTraffic, EvtPersonLeavesVehicle, EvtArrival}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("events %v, want %v", kinds, want)
	}

	stats := eng.Stats()
	if stats.Arrived != 1 || stats.Lost != 0 || stats.Living != 0 || stats.State != "finished" {
		t.Errorf("stats %+v", stats)
	}
	if eng.Run(context.Background()) != ErrAlreadyRunning {
		t.Errorf("an engine runs once")
	}
}

func TestSameLinkLeg(t *testing.T) {
	pd := CreatePlansDesc("stay")
	pd.AddAgent("p").AddLeg(5, "", "L1")

	eng, ec, _, err := runScenario(t, lineDesc(2), pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(ec.Events) != 2 || ec.Events[0].Kind != EvtDeparture || ec.Events[1].Kind != EvtArrival {
		t.Errorf("events %+v", ec.Events)
	}
	if ec.Events[1].Time != 5 || eng.Stats().Arrived != 1 {
		t.Errorf("arrival %+v, stats %+v", ec.Events[1], eng.Stats())
	}
}

// saturationScenario sends cnt vehicles through L1, which passes 600 PCE/h
func saturationScenario(cnt int) (*NetworkDesc, *PlansDesc, *Config) {
	nd := lineDesc(3)
	nd.Links[0].Length = 1000
	nd.Links[0].Capacity = 36000
	nd.Links[1].Capacity = 600
	nd.Links[2].Capacity = 36000

	pd := CreatePlansDesc("saturation")
	for idx := 0; idx < cnt; idx++ {
		pd.AddAgent(fmt.Sprintf("p%04d", idx)).AddLeg(0, "", "L0", "L1", "L2")
	}

	cfg := DefaultConfig()
	cfg.StuckTime = 1e7
	cfg.NodeOrder = NodeOrderFixed
	return nd, pd, cfg
}

func TestSaturatedFlow(t *testing.T) {
	nd, pd, cfg := saturationScenario(1000)
	eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	entries := []float64{}
	for _, ev := range ec.OfKind(EvtLinkEnter) {
		if ev.Link == "L2" {
			entries = append(entries, ev.Time)
		}
	}
	if len(entries) != 1000 {
		t.Fatalf("%d vehicles entered L2, want 1000", len(entries))
	}
	t0 := entries[0]
	inHour := 0
	for _, tm := range entries {
		if tm >= t0 && tm < t0+3600 {
			inHour++
		}
	}
	if inHour < 599 || inHour > 601 {
		t.Errorf("%d vehicles passed in an hour, want 600", inHour)
	}
	for idx := 1; idx < 10; idx++ {
		if gap := entries[idx] - entries[idx-1]; gap != 6 {
			t.Errorf("gap %v between vehicles %d and %d, want 6", gap, idx-1, idx)
		}
	}

	stats := eng.Stats()
	if stats.Arrived != 1000 || stats.Lost != 0 {
		t.Errorf("arrived %d lost %d", stats.Arrived, stats.Lost)
	}
}

func TestSaturatedFlowWithHoles(t *testing.T) {
	nd, pd, cfg := saturationScenario(100)
	cfg.TrafficDynamics = DynamicsWithHoles
	eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats := eng.Stats(); stats.Arrived != 100 || stats.Lost != 0 {
		t.Errorf("arrived %d lost %d", stats.Arrived, stats.Lost)
	}
	if len(ec.OfKind(EvtStuck)) != 0 {
		t.Errorf("no vehicle should get stuck")
	}
}

// sharedVehicleScenario has agent a drive vehicle v from L0 to L2, where agent b picks it up
func sharedVehicleScenario(bDeparture float64) (*NetworkDesc, *PlansDesc) {
	pd := CreatePlansDesc("shared")
	pd.AddVehicle("v", DefaultVehicleType, "L0")
	pd.AddAgent("a").AddLeg(0, "v", "L0", "L1", "L2")
	pd.AddAgent("b").AddLeg(bDeparture, "v", "L2", "L3")
	return lineDesc(4), pd
}

func TestWaitForVehicle(t *testing.T) {
	nd, pd := sharedVehicleScenario(0)
	cfg := DefaultConfig()
	cfg.VehicleBehavior = BehaviorWait

	eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	arrA := findEvent(ec, EvtArrival, "a", "L2")
	waitB := findEvent(ec, EvtWaitToLink, "b", "L2")
	if arrA < 0 || waitB < 0 || waitB < arrA {
		t.Errorf("b entered traffic at event %d, a arrived at event %d", waitB, arrA)
	}
	if ec.Events[waitB].Time != ec.Events[arrA].Time {
		t.Errorf("b entered traffic at %v, a arrived at %v", ec.Events[waitB].Time, ec.Events[arrA].Time)
	}
	if findEvent(ec, EvtArrival, "b", "L3") < 0 {
		t.Errorf("b never arrived")
	}
	if eng.Stats().Arrived != 2 {
		t.Errorf("stats %+v", eng.Stats())
	}
}

func TestWaitForVehicleNeverComing(t *testing.T) {
	nd, pd := sharedVehicleScenario(0)
	pd.Agents[0].Legs[0].Route = []string{"L0", "L1"}
	cfg := DefaultConfig()
	cfg.VehicleBehavior = BehaviorWait

	eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if findEvent(ec, EvtStuck, "b", "L2") < 0 {
		t.Errorf("b should be reported stuck where it waits")
	}
	if stats := eng.Stats(); stats.Arrived != 1 || stats.Lost != 1 {
		t.Errorf("stats %+v", stats)
	}
}

func TestTeleportVehicle(t *testing.T) {
	pd := CreatePlansDesc("teleport")
	pd.AddVehicle("v", DefaultVehicleType, "L0")
	pd.AddAgent("b").AddLeg(0, "v", "L2", "L3")

	eng, ec, hook, err := runScenario(t, lineDesc(4), pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if findEvent(ec, EvtArrival, "b", "L3") < 0 || eng.Stats().Arrived != 1 {
		t.Errorf("b never arrived")
	}
	teleports := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["kind"] == "teleport" {
			teleports++
		}
	}
	if teleports != 1 || eng.Warner().Count("teleport") != 1 {
		t.Errorf("%d teleport warnings logged, %d counted", teleports, eng.Warner().Count("teleport"))
	}
}

func TestTeleportVehicleInUse(t *testing.T) {
	nd, pd := sharedVehicleScenario(0)
	_, _, _, err := runScenario(t, nd, pd, DefaultConfig(), nil)
	if !errors.Is(err, ErrVehicleMissing) {
		t.Errorf("error %v, want ErrVehicleMissing", err)
	}
}

func TestMissingVehicleFails(t *testing.T) {
	pd := CreatePlansDesc("fail")
	pd.AddVehicle("v", DefaultVehicleType, "L0")
	pd.AddAgent("b").AddLeg(0, "v", "L2", "L3")
	cfg := DefaultConfig()
	cfg.VehicleBehavior = BehaviorFail

	eng, _, _, err := runScenario(t, lineDesc(4), pd, cfg, nil)
	if !errors.Is(err, ErrVehicleMissing) {
		t.Errorf("error %v, want ErrVehicleMissing", err)
	}
	if eng.State() != Finished {
		t.Errorf("state %v", eng.State())
	}
}

func TestRouteInconsistent(t *testing.T) {
	pd := CreatePlansDesc("broken")
	pd.AddAgent("p").AddLeg(0, "", "L0", "L2")

	_, _, _, err := runScenario(t, lineDesc(3), pd, DefaultConfig(), nil)
	if !errors.Is(err, ErrRouteInconsistent) {
		t.Errorf("error %v, want ErrRouteInconsistent", err)
	}
}

// stuckScenario sends a into L2, which holds one vehicle for 100 s, and b after it
func stuckScenario() (*NetworkDesc, *PlansDesc, *Config) {
	nd := lineDesc(4)
	nd.Links[2].Length = 7.5
	nd.Links[2].FreeSpeed = 0.075
	nd.Links[2].Capacity = 36

	pd := CreatePlansDesc("stuck")
	pd.AddAgent("a").AddLeg(0, "", "L0", "L1", "L2", "L3")
	pd.AddAgent("b").AddLeg(1, "", "L0", "L1", "L2", "L3")

	cfg := DefaultConfig()
	cfg.StuckTime = 5
	return nd, pd, cfg
}

func TestStuckVehicleRemoved(t *testing.T) {
	nd, pd, cfg := stuckScenario()
	if !cfg.RemoveStuckVehicles {
		t.Fatalf("stuck vehicles are removed by default")
	}

	eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	idx := findEvent(ec, EvtStuck, "b", "L1")
	if idx < 0 {
		t.Fatalf("b should be removed from L1")
	}
	if tm := ec.Events[idx].Time; tm != 16 {
		t.Errorf("b removed at %v, want 16", tm)
	}
	if stats := eng.Stats(); stats.Arrived != 1 || stats.Lost != 1 {
		t.Errorf("stats %+v", stats)
	}
}

func TestStuckVehiclePushed(t *testing.T) {
	nd, pd, cfg := stuckScenario()
	cfg.RemoveStuckVehicles = false

	eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tm := eventTime(t, ec, EvtLinkEnter, "b", "L2"); tm != 16 {
		t.Errorf("b pushed into L2 at %v, want 16", tm)
	}
	if stats := eng.Stats(); stats.Arrived != 2 || stats.Lost != 0 {
		t.Errorf("stats %+v", stats)
	}
}

func TestSignalHoldsVehicle(t *testing.T) {
	nd := lineDesc(3)
	nd.Links[1].Signal = &SignalDesc{Cycle: 60, GreenStart: 30, GreenEnd: 60}
	pd := CreatePlansDesc("signal")
	pd.AddAgent("p").AddLeg(0, "", "L0", "L1", "L2")

	_, ec, _, err := runScenario(t, nd, pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tm := eventTime(t, ec, EvtLinkLeave, "p", "L1"); tm != 30 {
		t.Errorf("left L1 at %v, want 30", tm)
	}
}

func TestChangeEventReducesCapacity(t *testing.T) {
	pd := CreatePlansDesc("change")
	pd.AddAgent("a").AddLeg(0, "", "L0", "L1", "L2")
	pd.AddAgent("b").AddLeg(0, "", "L0", "L1", "L2")

	cel := &ChangeEventList{Name: "reduce", Events: []ChangeEventDesc{
		{Time: 0, Links: []string{"L1"}, FlowCapacity: &ChangeValueDesc{Type: "factor", Value: 0.1}},
	}}
	cfg := DefaultConfig()
	cfg.NodeOrder = NodeOrderFixed

	_, ec, _, err := runScenario(t, lineDesc(3), pd, cfg, cel)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tm := eventTime(t, ec, EvtLinkLeave, "a", "L1"); tm != 10 {
		t.Errorf("a left L1 at %v, want 10", tm)
	}
	if tm := eventTime(t, ec, EvtLinkLeave, "b", "L1"); tm != 20 {
		t.Errorf("b left L1 at %v, want 20", tm)
	}

	// without the change b follows a one second later
	_, ec, _, _ = runScenario(t, lineDesc(3), pd, cfg, nil)
	if tm := eventTime(t, ec, EvtLinkLeave, "b", "L1"); tm != 11 {
		t.Errorf("b left L1 at %v, want 11", tm)
	}
}

func TestLaneChoice(t *testing.T) {
	pd := CreatePlansDesc("lanes")
	pd.AddAgent("p").AddLeg(0, "", "L0", "L1", "L3")
	pd.AddAgent("q").AddLeg(0, "", "L0", "L1", "L2")

	_, ec, _, err := runScenario(t, forkDesc(), pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if findEvent(ec, EvtLaneEnter, "p", "L1") < 0 {
		t.Fatalf("no lane events")
	}
	lanes := map[string][]string{}
	for _, ev := range ec.OfKind(EvtLaneEnter) {
		lanes[ev.Agent] = append(lanes[ev.Agent], ev.Lane)
	}
	if fmt.Sprint(lanes["p"]) != "[L1.ol L1.b]" || fmt.Sprint(lanes["q"]) != "[L1.ol L1.a]" {
		t.Errorf("lanes %v", lanes)
	}
	if findEvent(ec, EvtArrival, "p", "L3") < 0 || findEvent(ec, EvtArrival, "q", "L2") < 0 {
		t.Errorf("agents did not arrive")
	}
}

func TestLaneLeastOccupied(t *testing.T) {
	nd := lineDesc(3)
	nd.Links[1].AddLane(LaneDesc{ID: "L1.a", Length: 50})
	nd.Links[1].AddLane(LaneDesc{ID: "L1.b", Length: 50})
	pd := CreatePlansDesc("lanes")
	pd.AddAgent("p").AddLeg(0, "", "L0", "L1", "L2")
	pd.AddAgent("q").AddLeg(1, "", "L0", "L1", "L2")

	cfg := DefaultConfig()
	cfg.UseLaneEvents = true
	_, ec, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if idx := findEvent(ec, EvtLaneEnter, "p", "L1"); idx < 0 {
		t.Fatalf("no lane events")
	}
	got := map[string]string{}
	for _, ev := range ec.OfKind(EvtLaneEnter) {
		if ev.Lane != "L1.ol" {
			got[ev.Agent] = ev.Lane
		}
	}
	if got["p"] != "L1.a" || got["q"] != "L1.b" {
		t.Errorf("lanes %v", got)
	}

	// without lane events only link events are emitted
	cfg.UseLaneEvents = false
	_, ec, _, _ = runScenario(t, nd, pd, cfg, nil)
	if len(ec.OfKind(EvtLaneEnter)) != 0 {
		t.Errorf("lane events emitted")
	}
}

func TestTransitStop(t *testing.T) {
	pd := CreatePlansDesc("transit")
	ad := pd.AddAgent("bus")
	ad.AddLeg(0, "", "L0", "L1", "L2")
	ad.Stops = []StopDesc{{ID: "s1", Link: "L1", Dwell: 30}}

	_, ec, _, err := runScenario(t, lineDesc(3), pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	arr := ec.OfKind(EvtTransitArrivesAtStop)
	dep := ec.OfKind(EvtTransitDepartsFromStop)
	if len(arr) != 1 || len(dep) != 1 {
		t.Fatalf("%d stop arrivals, %d stop departures", len(arr), len(dep))
	}
	if arr[0].Time != 10 || arr[0].Stop != "s1" || arr[0].Delay != 30 {
		t.Errorf("stop arrival %+v", arr[0])
	}
	if dep[0].Time != 40 {
		t.Errorf("stop departure at %v, want 40", dep[0].Time)
	}
	if tm := eventTime(t, ec, EvtLinkLeave, "bus", "L1"); tm != 40 {
		t.Errorf("left L1 at %v, want 40", tm)
	}
}

func TestEndTimeAbortsAgents(t *testing.T) {
	pd := CreatePlansDesc("late")
	pd.AddAgent("p").AddLeg(0, "", "L0", "L1", "L2")
	pd.AddAgent("q").AddLeg(100, "", "L0", "L1")
	cfg := DefaultConfig()
	cfg.EndTime = 5

	eng, ec, _, err := runScenario(t, lineDesc(3), pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if findEvent(ec, EvtStuck, "p", "L1") < 0 || findEvent(ec, EvtStuck, "q", "L0") < 0 {
		t.Errorf("remaining agents not reported stuck: %+v", ec.OfKind(EvtStuck))
	}
	stats := eng.Stats()
	if stats.Lost != 2 || stats.Living != 0 || stats.Time != 5 {
		t.Errorf("stats %+v", stats)
	}
}

func TestMultipleLegs(t *testing.T) {
	pd := CreatePlansDesc("legs")
	ad := pd.AddAgent("p")
	ad.AddLeg(0, "", "L0", "L1")
	ad.AddLeg(100, "", "L1", "L2")

	eng, ec, _, err := runScenario(t, lineDesc(3), pd, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	deps := ec.OfKind(EvtDeparture)
	if len(deps) != 2 || deps[1].Time != 100 || deps[1].Link != "L1" {
		t.Errorf("departures %+v", deps)
	}
	if eng.Stats().Arrived != 1 {
		t.Errorf("stats %+v", eng.Stats())
	}
}

// mergeScenario has two streams of vehicles meet on L23
func mergeScenario(workers int) (*NetworkDesc, *PlansDesc, *Config) {
	nd := CreateNetworkDesc("merge")
	for _, id := range []string{"n0", "n1", "n2", "n3", "n4"} {
		nd.AddNode(id, 0, 0)
	}
	nd.AddLink("L02", "n0", "n2", 100, 10, 3600, 1)
	nd.AddLink("L12", "n1", "n2", 100, 10, 3600, 1)
	nd.AddLink("L23", "n2", "n3", 100, 10, 1800, 1)
	nd.AddLink("L34", "n3", "n4", 100, 10, 3600, 1)

	pd := CreatePlansDesc("merge")
	for idx := 0; idx < 50; idx++ {
		pd.AddAgent(fmt.Sprintf("a%02d", idx)).AddLeg(float64(idx), "", "L02", "L23", "L34")
		pd.AddAgent(fmt.Sprintf("b%02d", idx)).AddLeg(float64(idx), "", "L12", "L23", "L34")
	}

	cfg := DefaultConfig()
	cfg.Workers = workers
	cfg.NodeOrder = NodeOrderFixed
	cfg.StuckTime = 1e7
	return nd, pd, cfg
}

func sortedEvents(ec *EventCollector) []string {
	rtn := make([]string, 0, len(ec.Events))
	for _, ev := range ec.Events {
		rtn = append(rtn, fmt.Sprintf("%012.3f %s %s %s %s %s", ev.Time, ev.Kind, ev.Agent, ev.Vehicle, ev.Link, ev.Lane))
	}
	sort.Strings(rtn)
	return rtn
}

func TestWorkersAgree(t *testing.T) {
	nd, pd, cfg := mergeScenario(1)
	eng1, ec1, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	nd, pd, cfg = mergeScenario(4)
	eng4, ec4, _, err := runScenario(t, nd, pd, cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if eng1.Stats().Arrived != 100 || eng4.Stats().Arrived != 100 {
		t.Errorf("arrived %d and %d, want 100", eng1.Stats().Arrived, eng4.Stats().Arrived)
	}
	s1, s4 := sortedEvents(ec1), sortedEvents(ec4)
	if len(s1) != len(s4) {
		t.Fatalf("%d events with one worker, %d with four", len(s1), len(s4))
	}
	for idx := range s1 {
		if s1[idx] != s4[idx] {
			t.Errorf("event %d differs: %q and %q", idx, s1[idx], s4[idx])
			break
		}
	}
}

func TestStopEndsRun(t *testing.T) {
	nd, pd, cfg := saturationScenario(100)
	ec := &EventCollector{}
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	net, _ := BuildNetwork(nd, cfg, nil)
	pop, _ := BuildPopulation(pd, net, nil)
	var eng *Engine
	stopper := EventHandlerFunc(func(ev Event) {
		if ev.Kind == EvtArrival {
			eng.Stop()
		}
	})
	eng, err := NewEngine(net, pop, cfg, WithLogger(log), WithEventHandler(ec), WithEventHandler(stopper))
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	if eng.RunID() == "" {
		t.Errorf("no run id drawn")
	}
	if err = eng.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	stats := eng.Stats()
	if stats.Arrived == 0 || stats.Arrived == 100 || stats.Arrived+stats.Lost != 100 {
		t.Errorf("stats %+v", stats)
	}
}

func TestCancelledContext(t *testing.T) {
	nd, pd, cfg := saturationScenario(10)
	net, _ := BuildNetwork(nd, cfg, nil)
	pop, _ := BuildPopulation(pd, net, nil)
	logger, _ := test.NewNullLogger()
	eng, err := NewEngine(net, pop, cfg, WithLogger(logrus.NewEntry(logger)))
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err = eng.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats := eng.Stats(); stats.Steps != 1 || stats.Lost != 10 {
		t.Errorf("stats %+v", stats)
	}
}
