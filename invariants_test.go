package qsim

import (
	"fmt"
	"math"
	"testing"

	"github.com/iti/rngstream"
)

// storageCheck records the largest number of vehicles a lane held beyond what its storage admits
type storageCheck struct {
	worst int
	where string
}

func (sc *storageCheck) observe(net *Network, ev Event) {
	for _, link := range net.Links() {
		for _, lane := range link.Lanes() {
			limit := int(math.Ceil(lane.Capacity().StorageCapacity - storageEps))
			if over := lane.VehicleCount() - limit; over > sc.worst {
				sc.worst = over
				sc.where = fmt.Sprintf("%s at %v: %d vehicles, storage %.2f",
					lane.ID, ev.Time, lane.VehicleCount(), lane.Capacity().StorageCapacity)
			}
		}
	}
}

// checkLedger verifies that every agent, and the vehicle named after it, ends exactly
// once: by an arrival or by a stuck event
func checkLedger(t *testing.T, ec *EventCollector, pd *PlansDesc) {
	t.Helper()
	agentEnds, vehicleEnds := map[string]int{}, map[string]int{}
	for _, ev := range ec.Events {
		switch ev.Kind {
		case EvtArrival:
			agentEnds[ev.Agent]++
		case EvtVehicleLeavesTraffic:
			vehicleEnds[ev.Vehicle]++
		case EvtStuck:
			agentEnds[ev.Agent]++
			if ev.Vehicle != "" {
				vehicleEnds[ev.Vehicle]++
			}
		}
	}
	for _, ad := range pd.Agents {
		if agentEnds[ad.ID] != 1 || vehicleEnds[ad.ID] != 1 {
			t.Errorf("agent %s ended %d times, its vehicle %d times", ad.ID, agentEnds[ad.ID], vehicleEnds[ad.ID])
		}
	}
	if len(agentEnds) != len(pd.Agents) {
		t.Errorf("%d agents ended, %d declared", len(agentEnds), len(pd.Agents))
	}
}

// jamScenario sends cnt vehicles at once towards L2, which passes one vehicle a minute
func jamScenario(cnt int) (*NetworkDesc, *PlansDesc) {
	nd := lineDesc(4)
	nd.Links[2].Capacity = 60

	pd := CreatePlansDesc("jam")
	for idx := 0; idx < cnt; idx++ {
		pd.AddAgent(fmt.Sprintf("p%02d", idx)).AddLeg(0, "", "L0", "L1", "L2", "L3")
	}
	return nd, pd
}

func TestJamKeepsStorage(t *testing.T) {
	nd, pd := jamScenario(60)
	check := &storageCheck{}

	eng, ec, _, err := runObserved(t, nd, pd, DefaultConfig(), nil, check.observe)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if check.worst > 0 {
		t.Errorf("storage exceeded by %d vehicles (%s)", check.worst, check.where)
	}
	if len(ec.OfKind(EvtStuck)) == 0 {
		t.Errorf("blocked vehicles should be removed as stuck")
	}
	stats := eng.Stats()
	if stats.Lost == 0 || stats.Arrived+stats.Lost != 60 {
		t.Errorf("stats %+v", stats)
	}
	checkLedger(t, ec, pd)
}

func TestJamPushOverfills(t *testing.T) {
	nd, pd := jamScenario(60)
	cfg := DefaultConfig()
	cfg.RemoveStuckVehicles = false
	check := &storageCheck{}

	eng, ec, _, err := runObserved(t, nd, pd, cfg, nil, check.observe)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if check.worst == 0 {
		t.Errorf("pushing stuck vehicles should overfill L2")
	}
	if len(ec.OfKind(EvtStuck)) != 0 || eng.Stats().Arrived != 60 {
		t.Errorf("pushed vehicles all arrive: stats %+v", eng.Stats())
	}
	checkLedger(t, ec, pd)
}

func TestSingleLaneFIFO(t *testing.T) {
	nd, pd, cfg := saturationScenario(200)
	check := &storageCheck{}
	_, ec, _, err := runObserved(t, nd, pd, cfg, nil, check.observe)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for _, link := range []string{"L1", "L2"} {
		entered, left := []string{}, []string{}
		for _, ev := range ec.Events {
			if ev.Link != link {
				continue
			}
			switch ev.Kind {
			case EvtLinkEnter:
				entered = append(entered, ev.Agent)
			case EvtLinkLeave, EvtArrival:
				// vehicles end their leg on L2
				left = append(left, ev.Agent)
			}
		}
		if len(entered) != 200 || fmt.Sprint(entered) != fmt.Sprint(left) {
			t.Errorf("%s: %d entered, %d left, or not in the same order", link, len(entered), len(left))
		}
	}
	if check.worst > 0 {
		t.Errorf("storage exceeded by %d vehicles (%s)", check.worst, check.where)
	}
	checkLedger(t, ec, pd)
}

// maxInWindow returns the most times, of an ascending list, that fall in any window of the given length
func maxInWindow(times []float64, window float64) int {
	best, first := 0, 0
	for last := range times {
		for times[last]-times[first] >= window {
			first++
		}
		if cnt := last - first + 1; cnt > best {
			best = cnt
		}
	}
	return best
}

func TestSaturatedFlowLongRun(t *testing.T) {
	if testing.Short() {
		t.Skip("long run")
	}
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers%d", workers), func(t *testing.T) {
			nd, pd, cfg := saturationScenario(10000)
			cfg.Workers = workers
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
			if len(entries) != 10000 {
				t.Fatalf("%d vehicles entered L2, want 10000", len(entries))
			}
			if most := maxInWindow(entries, 3600); most != 600 {
				t.Errorf("at most %d vehicles passed in an hour, want 600", most)
			}
			if stats := eng.Stats(); stats.Arrived != 10000 || stats.Lost != 0 {
				t.Errorf("stats %+v", stats)
			}
			checkLedger(t, ec, pd)
		})
	}
}

func TestMaxInWindow(t *testing.T) {
	if got := maxInWindow([]float64{0, 1, 2, 10, 11}, 10); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if got := maxInWindow(nil, 10); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestNodeStreamSeed(t *testing.T) {
	first := newNodeStream("qsim", "n1")
	newNodeStream("qsim", "n2")
	rngstream.New("unrelated")
	again := newNodeStream("qsim", "n1")
	other := newNodeStream("other", "n1")

	differs := false
	for idx := 0; idx < 10; idx++ {
		u1, u2, u3 := first.RandU01(), again.RandU01(), other.RandU01()
		if u1 != u2 {
			t.Fatalf("draw %d: %v and %v from streams with the same seed", idx, u1, u2)
		}
		if u1 != u3 {
			differs = true
		}
	}
	if !differs {
		t.Errorf("different seeds gave the same draws")
	}
}

func formatEvents(ec *EventCollector) []string {
	rtn := make([]string, 0, len(ec.Events))
	for _, ev := range ec.Events {
		rtn = append(rtn, fmt.Sprintf("%v %s %s %s %s", ev.Time, ev.Kind, ev.Agent, ev.Link, ev.Lane))
	}
	return rtn
}

func TestCapacityWeightedReproducible(t *testing.T) {
	run := func(workers int) *EventCollector {
		nd, pd, cfg := mergeScenario(workers)
		cfg.NodeOrder = NodeOrderCapacityWeighted
		eng, ec, _, err := runScenario(t, nd, pd, cfg, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if eng.Stats().Arrived != 100 {
			t.Errorf("stats %+v", eng.Stats())
		}
		checkLedger(t, ec, pd)
		return ec
	}

	first, second := formatEvents(run(1)), formatEvents(run(1))
	if len(first) != len(second) {
		t.Fatalf("%d and %d events", len(first), len(second))
	}
	for idx := range first {
		if first[idx] != second[idx] {
			t.Fatalf("event %d differs: %q and %q", idx, first[idx], second[idx])
		}
	}

	s1, s4 := sortedEvents(run(1)), sortedEvents(run(4))
	if fmt.Sprint(s1) != fmt.Sprint(s4) {
		t.Errorf("one and four workers disagree")
	}
}

func TestLargeVehicleNeedsRoom(t *testing.T) {
	net, err := BuildNetwork(lineDesc(2), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	lane := net.Link("L1").EntryLane()
	car := NewVehicle("car", &VehicleType{ID: "car", PCE: 1, FlowEfficiency: 1})
	truck := NewVehicle("truck", &VehicleType{ID: "truck", PCE: 3, FlowEfficiency: 1})

	if !lane.acceptsVehicle(truck, 0) {
		t.Errorf("an empty lane takes any vehicle")
	}
	lane.usedStorage = 10
	if !lane.acceptsVehicle(truck, 0) {
		t.Errorf("13 PCE fit in %.2f", lane.Capacity().StorageCapacity)
	}
	lane.usedStorage = 12
	if !lane.acceptsVehicle(car, 0) {
		t.Errorf("a car enters while storage is left")
	}
	if lane.acceptsVehicle(truck, 0) || net.Link("L1").acceptsVehicle(truck, 0) {
		t.Errorf("15 PCE do not fit in %.2f", lane.Capacity().StorageCapacity)
	}
}
