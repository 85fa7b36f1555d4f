// Package fsm defines the interview session state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle          State = "idle"
	StateAcquiring     State = "acquiring"
	StateRecording     State = "recording"
	StateNarrating     State = "narrating"
	StateListening     State = "listening"
	StateTransitioning State = "transitioning"
	StateFinalizing    State = "finalizing"
	StateStopped       State = "stopped"
	StateError         State = "error"
)

const (
	EventAcquire      Event = "acquire"
	EventAcquired     Event = "acquired"
	EventNarrate      Event = "narrate"
	EventNarrated     Event = "narrated"
	EventListen       Event = "listen"
	EventListenEnded  Event = "listen_ended"
	EventNavigate     Event = "navigate"
	EventFinalize     Event = "finalize"
	EventResume       Event = "resume"
	EventFinalized    Event = "finalized"
	EventRetryAcquire Event = "retry_acquire"
	EventRetryUpload  Event = "retry_upload"
	EventHangup       Event = "hangup"
	EventFail         Event = "fail"
	EventReset        Event = "reset"
)

// Active reports whether a session is past acquisition and still capturing.
func (s State) Active() bool {
	switch s {
	case StateRecording, StateNarrating, StateListening, StateTransitioning:
		return true
	default:
		return false
	}
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if current == StateStopped {
			return current, invalidTransition(current, event)
		}
		return StateError, nil
	}
	if event == EventHangup {
		if current == StateStopped {
			return current, invalidTransition(current, event)
		}
		return StateStopped, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventAcquire:
			return StateAcquiring, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAcquiring:
		switch event {
		case EventAcquired:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventNarrate:
			return StateNarrating, nil
		case EventListen:
			return StateListening, nil
		case EventNavigate:
			return StateTransitioning, nil
		case EventFinalize:
			return StateFinalizing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateNarrating:
		switch event {
		case EventNarrate:
			return StateNarrating, nil
		case EventNarrated:
			return StateListening, nil
		case EventListenEnded:
			return StateRecording, nil
		case EventNavigate:
			return StateTransitioning, nil
		case EventFinalize:
			return StateFinalizing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventNarrate:
			return StateNarrating, nil
		case EventListenEnded:
			return StateRecording, nil
		case EventNavigate:
			return StateTransitioning, nil
		case EventFinalize:
			return StateFinalizing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateTransitioning:
		switch event {
		case EventNarrate:
			return StateNarrating, nil
		case EventFinalize:
			return StateFinalizing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventFinalized:
			return StateStopped, nil
		case EventResume:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventRetryAcquire:
			return StateAcquiring, nil
		case EventRetryUpload:
			return StateFinalizing, nil
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
