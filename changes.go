package qsim

// changes.go applies time-variant link attributes: at its time a change event
// replaces or scales the flow capacity, free speed or lane count of its links,
// after which the capacities of their lanes are derived again.

import (
	"github.com/pkg/errors"
)

// ChangeValue is one attribute change; a factor multiplies the attribute as read from the network
type ChangeValue struct {
	Factor bool
	Value  float64
}

func (cv *ChangeValue) apply(base float64) float64 {
	if cv.Factor {
		return base * cv.Value
	}
	return cv.Value
}

// ChangeEvent changes attributes of a set of links from Time on.  FlowCapacity is in PCE per hour.
type ChangeEvent struct {
	Time         float64
	Links        []*Link
	FlowCapacity *ChangeValue
	FreeSpeed    *ChangeValue
	Lanes        *ChangeValue
}

// ResolveChangeEvents binds a list of change event descriptions to the links of net.
// Absolute flow capacities are read in the network's capacity period.
func ResolveChangeEvents(cel *ChangeEventList, net *Network, capacityPeriod float64) ([]*ChangeEvent, error) {
	if cel == nil {
		return nil, nil
	}
	if capacityPeriod <= 0 {
		capacityPeriod = 3600.0
	}

	rtn := make([]*ChangeEvent, 0, len(cel.Events))
	for idx := range cel.Events {
		ced := &cel.Events[idx]
		ce := &ChangeEvent{Time: ced.Time}
		for _, id := range ced.Links {
			link := net.Link(id)
			if link == nil {
				return nil, errors.Wrapf(ErrBadTopology, "change event at %v names unknown link %s", ced.Time, id)
			}
			ce.Links = append(ce.Links, link)
		}

		var err error
		if ce.FlowCapacity, err = resolveValue(ced.FlowCapacity, "flowcapacity", ced.Time); err != nil {
			return nil, err
		}
		if ce.FlowCapacity != nil && !ce.FlowCapacity.Factor {
			ce.FlowCapacity.Value = ce.FlowCapacity.Value * 3600.0 / capacityPeriod
		}
		if ce.FreeSpeed, err = resolveValue(ced.FreeSpeed, "freespeed", ced.Time); err != nil {
			return nil, err
		}
		if ce.Lanes, err = resolveValue(ced.Lanes, "lanes", ced.Time); err != nil {
			return nil, err
		}
		rtn = append(rtn, ce)
	}
	return rtn, nil
}

func resolveValue(cvd *ChangeValueDesc, attrb string, time float64) (*ChangeValue, error) {
	if cvd == nil {
		return nil, nil
	}
	switch cvd.Type {
	case "absolute", "":
		return &ChangeValue{Value: cvd.Value}, nil
	case "factor":
		return &ChangeValue{Factor: true, Value: cvd.Value}, nil
	}
	return nil, errors.Wrapf(ErrBadConfig, "change event at %v: %s has unknown type %q", time, attrb, cvd.Type)
}

// applyChange sets the link's attributes from the change event and derives its lane capacities again
func (link *Link) applyChange(ce *ChangeEvent, w *Warner) error {
	if ce.FlowCapacity != nil {
		link.CapacityPerHour = ce.FlowCapacity.apply(link.baseCapacity)
	}
	if ce.FreeSpeed != nil {
		link.FreeSpeed = ce.FreeSpeed.apply(link.baseFreeSpeed)
	}
	if ce.Lanes != nil {
		link.NumLanes = ce.Lanes.apply(link.baseNumLanes)
	}
	return link.deriveLaneAttributes(w)
}
