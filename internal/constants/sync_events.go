package constants

// Cycle event types for cycle_history table
const (
	CycleEventFlightIndex = "FLIGHT_INDEX_SYNC"
)

// Trigger sources for a cycle run
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerOneShot   = "one_shot"
)
