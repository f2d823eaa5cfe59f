package qsim

import (
	"sync"

	"golang.org/x/exp/slices"
)

// parking is the map of vehicles parked on links, and of the agents waiting on
// a link for a vehicle that is not there yet.  Departures write it and arrivals
// read it, so every access holds the lock.
type parking struct {
	mu      sync.Mutex
	parked  map[string]map[string]*Vehicle // link id -> vehicle id -> vehicle
	waiting map[string]map[string][]Driver // link id -> vehicle id -> agents, first come first
}

func newParking() *parking {
	return &parking{parked: make(map[string]map[string]*Vehicle), waiting: make(map[string]map[string][]Driver)}
}

// park puts the vehicle on the link and returns the agents that were waiting there for it
func (pk *parking) park(veh *Vehicle, link *Link) []Driver {
	pk.mu.Lock()
	defer pk.mu.Unlock()

	veh.moveTo(LocParked, link, nil)
	if pk.parked[link.ID] == nil {
		pk.parked[link.ID] = make(map[string]*Vehicle)
	}
	pk.parked[link.ID][veh.ID] = veh

	waiters := pk.waiting[link.ID][veh.ID]
	if len(waiters) > 0 {
		delete(pk.waiting[link.ID], veh.ID)
	}
	return waiters
}

// unpark takes the vehicle off the link, nil when it is not parked there
func (pk *parking) unpark(vehID string, linkID string) *Vehicle {
	pk.mu.Lock()
	defer pk.mu.Unlock()

	veh := pk.parked[linkID][vehID]
	if veh != nil {
		delete(pk.parked[linkID], vehID)
	}
	return veh
}

// registerWaiting records an agent waiting on the link for the vehicle
func (pk *parking) registerWaiting(linkID, vehID string, d Driver) {
	pk.mu.Lock()
	defer pk.mu.Unlock()

	if pk.waiting[linkID] == nil {
		pk.waiting[linkID] = make(map[string][]Driver)
	}
	pk.waiting[linkID][vehID] = append(pk.waiting[linkID][vehID], d)
}

// requeueWaiting puts agents back at the front of the waiting list for the vehicle
func (pk *parking) requeueWaiting(linkID, vehID string, ds []Driver) {
	if len(ds) == 0 {
		return
	}
	pk.mu.Lock()
	defer pk.mu.Unlock()

	if pk.waiting[linkID] == nil {
		pk.waiting[linkID] = make(map[string][]Driver)
	}
	pk.waiting[linkID][vehID] = append(append([]Driver{}, ds...), pk.waiting[linkID][vehID]...)
}

// waitingAgents returns every waiting agent with the link it waits on, ordered by link and vehicle id
func (pk *parking) waitingAgents() ([]Driver, []string) {
	pk.mu.Lock()
	defer pk.mu.Unlock()

	linkIDs := make([]string, 0, len(pk.waiting))
	for id := range pk.waiting {
		linkIDs = append(linkIDs, id)
	}
	slices.Sort(linkIDs)

	drivers, links := []Driver{}, []string{}
	for _, linkID := range linkIDs {
		vehIDs := make([]string, 0, len(pk.waiting[linkID]))
		for id := range pk.waiting[linkID] {
			vehIDs = append(vehIDs, id)
		}
		slices.Sort(vehIDs)
		for _, vehID := range vehIDs {
			for _, d := range pk.waiting[linkID][vehID] {
				drivers = append(drivers, d)
				links = append(links, linkID)
			}
		}
	}
	return drivers, links
}
