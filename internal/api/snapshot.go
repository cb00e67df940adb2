package api

import "time"

// BuildSnapshot aggregates venue and performance state from the engine
// into a single value the dashboard can serve or push over the socket.
func BuildSnapshot(provider SnapshotProvider) DashboardSnapshot {
	return DashboardSnapshot{
		Timestamp:   time.Now(),
		Venues:      provider.VenueStatuses(),
		Performance: provider.PerformanceMetrics(),
	}
}
