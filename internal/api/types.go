package api

import (
	"time"

	"fixengine/internal/engine"
	"fixengine/pkg/types"
)

// DashboardSnapshot represents the complete operator-facing state: every
// venue's session phase plus pool/routing performance counters.
type DashboardSnapshot struct {
	Timestamp   time.Time                 `json:"timestamp"`
	Venues      []types.VenueStatus       `json:"venues"`
	Performance engine.PerformanceMetrics `json:"performance"`
}

// SnapshotProvider supplies the engine state BuildSnapshot aggregates.
// *engine.Engine satisfies this directly.
type SnapshotProvider interface {
	VenueStatuses() []types.VenueStatus
	PerformanceMetrics() engine.PerformanceMetrics
}
