package domain

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"   // Waiting for dependencies to be running
	StatusStarting  Status = "starting"  // Process spawned, waiting for boot/confirmation
	StatusRunning   Status = "running"   // Process booted and confirmed
	StatusStopping  Status = "stopping"  // Abort in flight
	StatusSuccess   Status = "success"   // Process exited with code 0
	StatusFailed    Status = "failed"    // Process exited with a non-zero code
	StatusCancelled Status = "cancelled" // Stopped, or never started
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusStarting,
		StatusRunning,
		StatusStopping,
		StatusSuccess,
		StatusFailed,
		StatusCancelled,
	}
}

// transitions defines the allowed status transitions.
//
//	cancelled/success/failed ──► starting ──► running ──► success/failed
//	        │                       │            │
//	        ▼                       └──► stopping ◄┘──► cancelled
//	     pending ──► cancelled
var transitions = map[Status][]Status{
	StatusPending:   {StatusPending, StatusStarting, StatusCancelled},
	StatusStarting:  {StatusRunning, StatusSuccess, StatusFailed, StatusStopping},
	StatusRunning:   {StatusSuccess, StatusFailed, StatusStopping},
	StatusStopping:  {StatusCancelled},
	StatusSuccess:   {StatusPending, StatusStarting, StatusCancelled},
	StatusFailed:    {StatusPending, StatusStarting, StatusCancelled},
	StatusCancelled: {StatusPending, StatusStarting, StatusCancelled},
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s Status) CanTransitionTo(target Status) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsCompleted reports whether a task in this status is not executing new work.
// Stopping counts as completed: commands and dependency cascades rely on
// exactly this set.
func (s Status) IsCompleted() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusStopping, StatusCancelled:
		return true
	default:
		return false
	}
}

// Display returns a human-readable representation of the status.
func (s Status) Display() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusStarting:
		return "Starting"
	case StatusRunning:
		return "Running"
	case StatusStopping:
		return "Stopping"
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}
