package session

// Signal is a proctoring event reported by the client while a session is
// active: full-screen state changes, page visibility changes and navigation
// attempts.
type Signal string

const (
	SignalFullscreenExited  Signal = "fullscreen_exited"
	SignalFullscreenEntered Signal = "fullscreen_entered"
	SignalHidden            Signal = "hidden"
	SignalVisible           Signal = "visible"
	SignalBackNavigation    Signal = "back_navigation"
	SignalUnloadAttempt     Signal = "unload_attempt"
)

// ViolationLimit is the number of violations that forces submission.
const ViolationLimit = 3

// monitorState tracks integrity violations for one session.
//
// FullscreenExited doubles as the VIOLATION_VISIBLE overlay flag: while set,
// the client shows the "return to test" overlay. Re-entering full-screen
// clears the flag but never the counter. Hidden mirrors the last reported
// visibility so that repeated "hidden" notifications without an intervening
// "visible" count once, not twice. Tripped latches after the forced-submit
// decision so it can fire at most once.
type monitorState struct {
	Violations       int
	FullscreenExited bool
	Hidden           bool
	Tripped          bool
}

type monitorAction int

const (
	actionNone monitorAction = iota
	// actionWarn: a violation was recorded, warn the client.
	actionWarn
	// actionForceSubmit: threshold reached or back navigation, submit now.
	actionForceSubmit
	// actionConfirmLeave: client should present the native leave prompt.
	actionConfirmLeave
)

// reduce folds one signal into the monitor state. It is a pure function: all
// signal sources go through it, so violation accounting is independent of
// which listener fired first.
func reduce(s monitorState, sig Signal) (monitorState, monitorAction) {
	if s.Tripped {
		return s, actionNone
	}

	switch sig {
	case SignalFullscreenExited:
		if s.FullscreenExited {
			return s, actionNone
		}
		s.FullscreenExited = true
		return countViolation(s)

	case SignalFullscreenEntered:
		s.FullscreenExited = false
		return s, actionNone

	case SignalHidden:
		if s.Hidden {
			return s, actionNone
		}
		s.Hidden = true
		return countViolation(s)

	case SignalVisible:
		s.Hidden = false
		return s, actionNone

	case SignalBackNavigation:
		s.Tripped = true
		return s, actionForceSubmit

	case SignalUnloadAttempt:
		return s, actionConfirmLeave
	}

	return s, actionNone
}

func countViolation(s monitorState) (monitorState, monitorAction) {
	if s.Violations < ViolationLimit {
		s.Violations++
	}

	if s.Violations >= ViolationLimit {
		s.Tripped = true
		return s, actionForceSubmit
	}

	return s, actionWarn
}
