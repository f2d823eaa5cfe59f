package qsim

import (
	"github.com/pkg/errors"
)

// Sentinel errors returned (wrapped) by network construction and by Engine.Run.
// Callers test for them with errors.Is.
var (
	// ErrBadTopology marks a link whose free-flow travel time cannot be computed
	ErrBadTopology = errors.New("malformed network topology")

	// ErrVehicleMissing marks a departure whose vehicle is not parked where it is needed
	ErrVehicleMissing = errors.New("vehicle missing at departure")

	// ErrRouteInconsistent marks a route naming a link that is not downstream of the current one
	ErrRouteInconsistent = errors.New("route inconsistent with network")

	// ErrBadConfig is returned by Config.Validate
	ErrBadConfig = errors.New("invalid configuration")

	// ErrAlreadyRunning is returned by Engine.Run when the engine has run before
	ErrAlreadyRunning = errors.New("engine already started")
)
