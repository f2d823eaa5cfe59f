package qsim

// capacity.go derives the per-step flow capacity, buffer size, storage capacity
// and (optionally) spillback hole count of a lane from its physical attributes.
// The derivation is a pure function so that re-running it after a network change
// event gives bit-identical results for unchanged inputs.

import (
	"math"

	"github.com/pkg/errors"
)

// rdigits is the number of decimal digits kept when accumulating fractional capacity
const rdigits = 9

// CapacityInput holds the physical attributes of a lane
type CapacityInput struct {
	Length          float64 // meters
	FreeSpeed       float64 // m/s
	Lanes           float64 // number of lanes (may be fractional)
	CapacityPerHour float64 // PCE per hour
}

// CapacityParams holds the global parameters that enter the derivation
type CapacityParams struct {
	StepSize         float64
	FlowCapFactor    float64
	StorageCapFactor float64
	CellSize         float64
	Holes            bool
	HoleSpeed        float64 // m/s
}

// capacityParams extracts the CapacityParams from a Config
func (cfg *Config) capacityParams() CapacityParams {
	return CapacityParams{
		StepSize:         cfg.StepSize,
		FlowCapFactor:    cfg.FlowCapFactor,
		StorageCapFactor: cfg.StorageCapFactor,
		CellSize:         cfg.EffectiveCellSize,
		Holes:            cfg.useHoles(),
		HoleSpeed:        cfg.holeSpeedPerSec(),
	}
}

// Capacity is the result of the derivation
type Capacity struct {
	FreeFlowTime     float64 // seconds
	FlowCapacity     float64 // PCE per step
	FlowCapPerSec    float64 // PCE per second
	FlowFraction     float64 // fractional part of FlowCapacity
	BufferCapacity   int
	StorageCapacity  float64 // PCE
	CongestedDensity float64 // PCE per meter, holes only
	Holes            int     // pre-seeded holes, holes only

	// StorageRaised is true when storage was raised to sustain flow for one free-flow traversal
	StorageRaised bool

	// StorageEnlarged is true when storage was enlarged to carry the bottleneck flow in a jam
	StorageEnlarged bool
}

// ComputeCapacity derives a lane's Capacity.  A free-flow travel time that is not
// finite (zero, negative or NaN free speed) is reported as ErrBadTopology.
func ComputeCapacity(in CapacityInput, p CapacityParams) (Capacity, error) {
	var c Capacity

	if !(in.FreeSpeed > 0) || math.IsInf(in.FreeSpeed, 0) {
		return c, errors.Wrapf(ErrBadTopology, "free speed %v", in.FreeSpeed)
	}
	c.FreeFlowTime = in.Length / in.FreeSpeed
	if math.IsNaN(c.FreeFlowTime) || math.IsInf(c.FreeFlowTime, 0) || c.FreeFlowTime < 0 {
		return c, errors.Wrapf(ErrBadTopology, "free-flow travel time %v", c.FreeFlowTime)
	}

	c.FlowCapPerSec = in.CapacityPerHour / 3600.0 * p.FlowCapFactor
	c.FlowCapacity = c.FlowCapPerSec * p.StepSize
	c.FlowFraction = c.FlowCapacity - math.Floor(c.FlowCapacity)
	c.BufferCapacity = int(math.Ceil(c.FlowCapacity))

	c.StorageCapacity = math.Max(in.Length*in.Lanes/p.CellSize*p.StorageCapFactor, float64(c.BufferCapacity))

	// enough room to hold the vehicles that enter during one free-flow traversal
	if minStorage := c.FreeFlowTime * c.FlowCapPerSec; minStorage > c.StorageCapacity {
		c.StorageCapacity = minStorage
		c.StorageRaised = true
	}

	if !p.Holes || in.Length <= 0 {
		return c, nil
	}

	bottleneck := 1.0 / p.HoleSpeed
	c.CongestedDensity = c.StorageCapacity/in.Length - c.FlowCapPerSec*bottleneck

	// below the critical density of the free-flow branch the jam cannot carry the bottleneck flow
	minDensity := c.FlowCapPerSec / in.FreeSpeed
	if c.CongestedDensity < minDensity {
		c.StorageCapacity = (minDensity + c.FlowCapPerSec*bottleneck) * in.Length
		c.CongestedDensity = c.StorageCapacity/in.Length - c.FlowCapPerSec*bottleneck
		c.StorageEnlarged = true
	}
	c.Holes = int(math.Ceil(roundFloat(c.CongestedDensity*in.Length, rdigits)))
	return c, nil
}

// roundFloat rounds val to the given number of decimal digits
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// fraction returns the non-negative fractional part of x
func fraction(x float64) float64 {
	return x - math.Floor(x)
}
