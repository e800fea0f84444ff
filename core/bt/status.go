package bt

// Status is the result of ticking a node.
type Status int

const (
	// Invalid marks a node that is not active. Tasks must not return it.
	Invalid Status = iota
	Running
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	default:
		return "INVALID"
	}
}

// Done reports whether s is a terminal status.
func (s Status) Done() bool { return s == Success || s == Failure }
