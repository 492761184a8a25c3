package engine

import (
	"strings"

	"github.com/kasalabs/ussd-server-go/sessions"
	"github.com/kasalabs/ussd-server-go/ussd"
)

// action names a collaborator side effect the engine must perform to finish
// the step. Steps without an action carry their final response directly.
type action int

const (
	actionNone action = iota
	// actionCheckRegistered gates entry into the registration flow on the
	// caller not already having a record.
	actionCheckRegistered
	// actionStatus renders the system status with the live user count.
	actionStatus
	// actionCommitRegistration writes the collected profile to the directory.
	actionCommitRegistration
	// actionDispatchAlert files the emergency report and fans out the SMS.
	actionDispatchAlert
)

// step is the outcome of one transition. next/collect/retries describe the
// session mutation to persist; resp is the reply unless an action overrides
// it.
type step struct {
	next    sessions.State
	resp    ussd.Response
	action  action
	collect map[string]string
	// retries is the re-prompt counter to persist. Zero whenever the state
	// advances.
	retries int
}

func (s step) terminal() bool { return s.next == sessions.StateTerminated }

// transition is the pure dialog transition function. It consults only its
// arguments; identical inputs always yield the identical step.
func transition(state sessions.State, token string, collected map[string]string, retries, maxRetries int) step {
	switch state {
	case sessions.StateMain:
		return transitionMain(token)

	case sessions.StateRegName:
		name := strings.TrimSpace(token)
		if name == "" {
			if retries >= maxRetries {
				return step{next: sessions.StateTerminated, resp: ussd.End(msgRegistrationError)}
			}
			return step{next: sessions.StateRegName, resp: ussd.Continue(promptNameAgain), retries: retries + 1}
		}
		return step{
			next:    sessions.StateRegLocation,
			resp:    ussd.Continue(locationPrompt(name)),
			collect: map[string]string{sessions.FieldName: name},
		}

	case sessions.StateRegLocation:
		loc := strings.TrimSpace(token)
		if loc == "" {
			if retries >= maxRetries {
				return step{next: sessions.StateTerminated, resp: ussd.End(msgRegistrationError)}
			}
			return step{next: sessions.StateRegLocation, resp: ussd.Continue(promptLocationAgain), retries: retries + 1}
		}
		return step{
			next:    sessions.StateRegConfirm,
			resp:    ussd.Continue(registrationConfirmMenu(collected[sessions.FieldName], loc)),
			collect: map[string]string{sessions.FieldLocation: loc},
		}

	case sessions.StateRegConfirm:
		switch token {
		case "1":
			return step{next: sessions.StateTerminated, action: actionCommitRegistration}
		case "2", "0":
			return step{next: sessions.StateTerminated, resp: ussd.End(msgRegistrationCancelled)}
		default:
			// Out-of-range selection re-renders the confirmation rather than
			// discarding two turns of typed input.
			return step{
				next: sessions.StateRegConfirm,
				resp: ussd.Continue(registrationConfirmMenu(collected[sessions.FieldName], collected[sessions.FieldLocation])),
			}
		}

	case sessions.StateEmergencyType:
		if alertType, ok := alertTypes[token]; ok {
			return step{
				next:    sessions.StateEmergencyConfirm,
				resp:    ussd.Continue(alertConfirmMenu(alertType)),
				collect: map[string]string{sessions.FieldAlertType: alertType},
			}
		}
		if token == "0" {
			// Back to the top-level menu.
			return step{next: sessions.StateMain, resp: ussd.Continue(mainMenu)}
		}
		return step{next: sessions.StateTerminated, resp: ussd.End(msgInvalidEmergencyType)}

	case sessions.StateEmergencyConfirm:
		switch token {
		case "1":
			return step{next: sessions.StateTerminated, action: actionDispatchAlert}
		case "2", "0":
			return step{next: sessions.StateTerminated, resp: ussd.End(msgAlertCancelled)}
		default:
			return step{next: sessions.StateTerminated, resp: ussd.End(msgSessionEnded)}
		}
	}

	return step{next: sessions.StateTerminated, resp: ussd.End(msgSessionEnded)}
}

func transitionMain(token string) step {
	switch token {
	case "":
		// First turn of the dialog.
		return step{next: sessions.StateMain, resp: ussd.Continue(mainMenu)}
	case "1":
		return step{next: sessions.StateEmergencyType, resp: ussd.Continue(emergencyMenu)}
	case "2":
		return step{next: sessions.StateRegName, action: actionCheckRegistered}
	case "3":
		return step{next: sessions.StateTerminated, action: actionStatus}
	case "4":
		return step{next: sessions.StateTerminated, resp: ussd.End(helpText)}
	case "0":
		return step{next: sessions.StateTerminated, resp: ussd.End(msgGoodbye)}
	default:
		return step{next: sessions.StateTerminated, resp: ussd.End(msgInvalidOption)}
	}
}
