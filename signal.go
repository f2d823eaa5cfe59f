package qsim

import (
	"math"
)

// SignalControl is the optional capability of a lane whose downstream end is signalized
type SignalControl interface {
	IsGreen(now float64) bool
}

// FixedTimeSignal is green during [GreenStart, GreenEnd) of every Cycle seconds, shifted by Offset
type FixedTimeSignal struct {
	Cycle      float64
	Offset     float64
	GreenStart float64
	GreenEnd   float64
}

// NewFixedTimeSignal builds a signal from its description, nil for a nil description
func NewFixedTimeSignal(sd *SignalDesc) *FixedTimeSignal {
	if sd == nil {
		return nil
	}
	return &FixedTimeSignal{Cycle: sd.Cycle, Offset: sd.Offset, GreenStart: sd.GreenStart, GreenEnd: sd.GreenEnd}
}

func (fts *FixedTimeSignal) IsGreen(now float64) bool {
	if fts.Cycle <= 0 {
		return true
	}
	sec := math.Mod(now-fts.Offset, fts.Cycle)
	if sec < 0 {
		sec += fts.Cycle
	}
	return sec >= fts.GreenStart && sec < fts.GreenEnd
}
