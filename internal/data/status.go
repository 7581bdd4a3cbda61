package data

// Status is the lifecycle state of a license key. Transitions are restricted
// to the table below; everything else is rejected with ErrInvalidTransition.
//
//	active -> used       (first activation binds the key)
//	active -> revoked    (admin)
//	used   -> revoked    (admin)
//	any    -> active     (admin reactivate / reset)
//	any    -> expired    (lazy expiry during validate)
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether a non-privileged transition is allowed.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusExpired:
		return from != StatusExpired
	case StatusUsed:
		return from == StatusActive
	case StatusRevoked:
		return from == StatusActive || from == StatusUsed
	default:
		return false
	}
}

// CanAdminTransition additionally allows any -> active.
func CanAdminTransition(from, to Status) bool {
	if to == StatusActive {
		return from != StatusActive
	}
	return CanTransition(from, to)
}

// allowedFrom lists the source statuses permitted for a given target, used
// to express the transition check inside a single guarded UPDATE.
func allowedFrom(to Status, admin bool) []string {
	var froms []Status
	for _, from := range []Status{StatusActive, StatusUsed, StatusRevoked, StatusExpired} {
		if admin && CanAdminTransition(from, to) {
			froms = append(froms, from)
		} else if !admin && CanTransition(from, to) {
			froms = append(froms, from)
		}
	}
	out := make([]string, len(froms))
	for i, f := range froms {
		out[i] = string(f)
	}
	return out
}
