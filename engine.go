package qsim

// engine.go holds the simulation driver.  Time advances in fixed steps; each
// step is an event on an evtm event manager that schedules the next one for as
// long as the run continues.  A step
//   - applies the network change events that are due,
//   - lets the agents that are due depart,
//   - steps every active link, in parallel over the partitions,
//   - parks the vehicles that arrived,
//   - moves vehicles across every active node, in parallel over the partitions.

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// EngineState is the life-cycle state of an Engine
type EngineState int32

const (
	NotStarted EngineState = iota
	Running
	Finished
)

var stateToStr = map[EngineState]string{NotStarted: "notStarted", Running: "running", Finished: "finished"}

func (es EngineState) String() string { return stateToStr[es] }

// Stats is a snapshot of a run's progress
type Stats struct {
	RunID       string  `json:"runid"`
	State       string  `json:"state"`
	Time        float64 `json:"time"`
	Steps       int64   `json:"steps"`
	Living      int64   `json:"living"`
	Arrived     int64   `json:"arrived"`
	Lost        int64   `json:"lost"`
	InNetwork   int64   `json:"innetwork"`
	ActiveLinks int64   `json:"activelinks"`
	ActiveNodes int64   `json:"activenodes"`
}

// Engine drives one simulation run over a network and a population.  An Engine
// runs once; build network and population anew for another run.
type Engine struct {
	cfg      *Config
	net      *Network
	pop      *Population
	log      *logrus.Entry
	warner   *Warner
	handlers []EventHandler
	runID    string

	parts      []*partition
	parking    *parking
	departures *DepartureScheduler
	changes    *changeQueue
	main       eventBuffer // events emitted outside the parallel phases

	now   float64
	steps int64
	err   error

	state   atomic.Int32
	stopReq atomic.Bool

	// statistics, readable while the run goes on
	timeBits    atomic.Uint64
	stepCnt     atomic.Int64
	living      atomic.Int64
	arrived     atomic.Int64
	lost        atomic.Int64
	inNetwork   atomic.Int64
	activeLinks atomic.Int64
	activeNodes atomic.Int64
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithEventHandler adds a receiver of the run's events
func WithEventHandler(h EventHandler) EngineOption {
	return func(e *Engine) { e.handlers = append(e.handlers, h) }
}

// WithLogger sets the log entry the engine writes to
func WithLogger(log *logrus.Entry) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithChangeEvents sets the network change events of the run
func WithChangeEvents(events []*ChangeEvent) EngineOption {
	return func(e *Engine) { e.changes = newChangeQueue(events) }
}

// WithWarner sets the rate limiter of the run's warnings, so that a run shares
// its allowance with whatever built its network
func WithWarner(w *Warner) EngineOption {
	return func(e *Engine) { e.warner = w }
}

// WithRunID sets the run id instead of drawing a fresh one
func WithRunID(id string) EngineOption {
	return func(e *Engine) { e.runID = id }
}

// NewEngine prepares a run.  Every vehicle is parked where the population places
// it and every agent is scheduled to depart on its first leg.
func NewEngine(net *Network, pop *Population, cfg *Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, net: net, pop: pop, parking: newParking(), departures: CreateDepartureScheduler(),
		changes: newChangeQueue(nil)}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	e.log = e.log.WithField("run", e.runID)
	if e.warner == nil {
		e.warner = NewWarner(e.log, cfg.WarnLimit)
	}

	e.parts = assignPartitions(e, net, cfg.Workers)

	for _, veh := range pop.Vehicles() {
		if veh.loc != LocUnplaced {
			return nil, errors.Errorf("vehicle %s was used by another run", veh.ID)
		}
		e.parking.park(veh, veh.link)
	}

	for _, agent := range pop.Agents() {
		pa := planAgentOf(agent)
		leg := pa.currentLeg()
		if leg == nil {
			continue
		}
		pa.state = agentAtActivity
		e.departures.Schedule(agent, leg.Departure)
		e.living.Add(1)
	}
	e.now = cfg.StartTime
	e.timeBits.Store(math.Float64bits(e.now))
	return e, nil
}

// State returns the life-cycle state
func (e *Engine) State() EngineState { return EngineState(e.state.Load()) }

// Now returns the simulation time of the current (or last) step
func (e *Engine) Now() float64 { return math.Float64frombits(e.timeBits.Load()) }

// RunID returns the id stamped on the run's log lines and traces
func (e *Engine) RunID() string { return e.runID }

// Warner returns the rate limiter of the run's warnings
func (e *Engine) Warner() *Warner { return e.warner }

// Stop asks the engine to finish after the step in progress
func (e *Engine) Stop() { e.stopReq.Store(true) }

// Stats returns a snapshot of the run's progress.  It may be called from any goroutine.
func (e *Engine) Stats() Stats {
	return Stats{
		RunID:       e.runID,
		State:       e.State().String(),
		Time:        e.Now(),
		Steps:       e.stepCnt.Load(),
		Living:      e.living.Load(),
		Arrived:     e.arrived.Load(),
		Lost:        e.lost.Load(),
		InNetwork:   e.inNetwork.Load(),
		ActiveLinks: e.activeLinks.Load(),
		ActiveNodes: e.activeNodes.Load(),
	}
}

// Run executes the simulation until every agent is done, the end time is passed,
// Stop is called or ctx is done; the last two take effect after the current step.
// At the end every vehicle still in traffic and every agent still alive is
// reported stuck.  The error is the first fatal error of the run, if any.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(NotStarted), int32(Running)) {
		return ErrAlreadyRunning
	}
	wallStart := time.Now()
	e.log.WithFields(logrus.Fields{"agents": e.living.Load(), "workers": len(e.parts),
		"links": len(e.net.Links())}).Info("simulation started")

	limit := 1e9
	if e.cfg.EndTime > 0 {
		limit = e.cfg.EndTime - e.cfg.StartTime + e.cfg.StepSize
	}
	evtMgr := evtm.New()
	evtMgr.Schedule(e, ctx, stepHandler, vrtime.SecondsToTime(0.0))
	evtMgr.Run(limit)

	e.finish()
	e.state.Store(int32(Finished))

	entry := e.log.WithFields(logrus.Fields{"time": e.now, "steps": e.steps, "arrived": e.arrived.Load(),
		"lost": e.lost.Load(), "wall": time.Since(wallStart).String()})
	if e.err != nil {
		entry.WithError(e.err).Error("simulation aborted")
		return e.err
	}
	entry.Info("simulation finished")
	return nil
}

// stepHandler is the evtm handler of one step.  It schedules the next step
// unless the run is over.
func stepHandler(evtMgr *evtm.EventManager, engine any, data any) any {
	e := engine.(*Engine)
	ctx := data.(context.Context)

	if err := e.doStep(); err != nil {
		e.err = err
		return nil
	}
	if e.shouldContinue(ctx) {
		e.steps++
		e.now = e.cfg.StartTime + float64(e.steps)*e.cfg.StepSize
		e.timeBits.Store(math.Float64bits(e.now))
		evtMgr.Schedule(e, ctx, stepHandler, vrtime.SecondsToTime(e.cfg.StepSize))
	}
	return nil
}

// shouldContinue decides, after a step, whether another one is run
func (e *Engine) shouldContinue(ctx context.Context) bool {
	if e.stopReq.Load() {
		e.log.Info("stop requested")
		return false
	}
	if ctx.Err() != nil {
		e.log.WithError(ctx.Err()).Info("context done")
		return false
	}
	if e.living.Load() == 0 {
		return false
	}
	next := e.cfg.StartTime + float64(e.steps+1)*e.cfg.StepSize
	if e.cfg.EndTime > 0 {
		return next <= e.cfg.EndTime
	}

	// without an end time, stop once nothing can change any more
	return e.departures.Len() > 0 || e.changes.pending() > 0 || e.activeLinks.Load() > 0 || e.activeNodes.Load() > 0
}

// doStep runs one simulation step at time e.now
func (e *Engine) doStep() error {
	now := e.now

	for _, ce := range e.changes.due(now) {
		for _, link := range ce.Links {
			if err := link.applyChange(ce, e.warner); err != nil {
				return err
			}
		}
	}

	due := e.departures.Due(now)
	for _, agent := range due {
		if err := e.depart(agent, now); err != nil {
			return err
		}
	}
	e.main.flush(e.handlers)
	e.mergeInboxes()

	runPhase(e.parts, func(p *partition) { p.doLinkPhase(now) })
	if err := e.afterPhase(); err != nil {
		return err
	}
	for _, arr := range e.collect(func(p *partition) *[]arrival { return &p.arrivals }) {
		e.arrive(arr.veh, arr.link, now)
	}
	e.main.flush(e.handlers)

	runPhase(e.parts, func(p *partition) { p.doNodePhase(now) })
	if err := e.afterPhase(); err != nil {
		return err
	}
	for _, arr := range e.collect(func(p *partition) *[]arrival { return &p.arrivals }) {
		e.arrive(arr.veh, arr.link, now)
	}
	for _, ab := range e.collect(func(p *partition) *[]arrival { return &p.aborted }) {
		e.abortInTraffic(ab.veh, ab.link, ab.time)
	}
	e.main.flush(e.handlers)
	e.mergeInboxes()

	e.updateStats()
	e.stepCnt.Store(e.steps + 1)
	if e.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		e.log.WithFields(logrus.Fields{"time": now, "departed": len(due), "activeLinks": e.activeLinks.Load(),
			"activeNodes": e.activeNodes.Load()}).Debug("step done")
	}
	if hb := e.cfg.HeartbeatInterval; hb > 0 && e.steps%int64(hb) == 0 {
		e.log.WithFields(logrus.Fields{"living": e.living.Load(), "activeLinks": e.activeLinks.Load(),
			"inNetwork": e.inNetwork.Load()}).Infof("STEP: %d (%s)", e.steps, formatTime(now))
	}
	return nil
}

// afterPhase hands the buffered events of the partitions to the handlers, in
// partition order, and returns the first fatal error of the phase
func (e *Engine) afterPhase() error {
	for _, p := range e.parts {
		p.events.flush(e.handlers)
	}
	for _, p := range e.parts {
		if p.err != nil {
			return p.err
		}
	}
	return nil
}

// collect empties the named list of every partition and returns the records
// ordered by link, so that what follows does not depend on the partitioning
func (e *Engine) collect(list func(p *partition) *[]arrival) []arrival {
	rtn := []arrival{}
	for _, p := range e.parts {
		recs := list(p)
		rtn = append(rtn, *recs...)
		*recs = (*recs)[:0]
	}
	slices.SortStableFunc(rtn, func(a, b arrival) int { return a.link.idx - b.link.idx })
	return rtn
}

func (e *Engine) mergeInboxes() {
	for _, p := range e.parts {
		p.mergeInbox()
	}
}

// activateLink is used outside the parallel phases
func (e *Engine) activateLink(link *Link) {
	link.part.addActiveLink(link)
}

func (e *Engine) emit(ev Event) {
	e.main.add(ev)
}

func (e *Engine) updateStats() {
	var links, nodes, inNet int64
	for _, p := range e.parts {
		links += int64(len(p.activeLinks))
		nodes += int64(len(p.activeNodes))
		for _, link := range p.activeLinks {
			inNet += int64(link.VehicleCount())
		}
	}
	e.activeLinks.Store(links)
	e.activeNodes.Store(nodes)
	e.inNetwork.Store(inNet)
}

// finish reports as stuck every vehicle still in traffic, every agent waiting for
// a vehicle and every agent that has legs left
func (e *Engine) finish() {
	now := e.now
	for _, link := range e.net.Links() {
		for _, veh := range link.allVehicles() {
			e.abortInTraffic(veh, link, now)
		}
		link.clear()
		link.active = false
	}
	for _, node := range e.net.Nodes() {
		node.active = false
	}
	for _, p := range e.parts {
		p.activeLinks = nil
		p.activeNodes = nil
	}

	drivers, links := e.parking.waitingAgents()
	for idx, d := range drivers {
		e.abortAgent(d, links[idx], now)
	}
	for _, d := range e.departures.drain() {
		e.abortAgent(d, planAgentOf(d).CurrentLinkID(), now)
	}
	e.main.flush(e.handlers)
	e.updateStats()
}

// abortInTraffic removes a vehicle from traffic and its driver from the run
func (e *Engine) abortInTraffic(veh *Vehicle, link *Link, now float64) {
	d := veh.driver
	veh.moveTo(LocAborted, link, nil)
	veh.driver = nil
	agentID := ""
	if d != nil {
		agentID = d.ID()
	}
	e.emit(Event{Time: now, Kind: EvtStuck, Agent: agentID, Vehicle: veh.ID, Link: link.ID})
	if d != nil {
		e.retire(planAgentOf(d), agentAborted)
	}
}

// abortAgent removes an agent that is not in traffic from the run
func (e *Engine) abortAgent(d Driver, linkID string, now float64) {
	pa := planAgentOf(d)
	if pa.state == agentDone || pa.state == agentAborted {
		return
	}
	e.emit(Event{Time: now, Kind: EvtStuck, Agent: d.ID(), Link: linkID})
	e.retire(pa, agentAborted)
}

// retire takes an agent out of the living count
func (e *Engine) retire(pa *PlanAgent, state agentState) {
	if pa.state == agentDone || pa.state == agentAborted {
		return
	}
	pa.state = state
	e.living.Add(-1)
	if state == agentAborted {
		e.lost.Add(1)
	} else {
		e.arrived.Add(1)
	}
}

// formatTime renders seconds as hh:mm:ss
func formatTime(secs float64) string {
	total := int64(math.Round(secs))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
