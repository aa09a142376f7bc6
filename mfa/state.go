package mfa

// State is the MFA enrolment state of an account.
type State int

const (
	// Disabled means no secret has been issued.
	Disabled State = iota
	// SetupPending means a secret exists but has not been confirmed.
	SetupPending
	// Enabled means a setup code was verified.
	Enabled
)

func (s State) String() string {
	switch s {
	case SetupPending:
		return "setup_pending"
	case Enabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// StateOf derives the state from the stored account fields.
func StateOf(secret string, enabled bool) State {
	switch {
	case enabled && secret != "":
		return Enabled
	case secret != "":
		return SetupPending
	default:
		return Disabled
	}
}
