package domain

// Role is the side a participant plays in the offer/answer exchange.
type Role int

const (
	RoleUnassigned Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unassigned"
	}
}

// CallState is the negotiation state of a participant.
type CallState int

const (
	StateIdle CallState = iota
	StateNegotiating
	StateStable
	StateClosed
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
