package frameworks

import "errors"

// ErrFrameworkNotFound indicates the catalog has no framework for the id.
var ErrFrameworkNotFound = errors.New("framework not found")

// ErrSystemNotFound indicates the registry has no system for the id.
var ErrSystemNotFound = errors.New("ai system not found")

// ErrNoApplicableRequirements indicates nothing in the framework applies to
// the system, so there is no denominator to score against.
var ErrNoApplicableRequirements = errors.New("no applicable requirements for system")
