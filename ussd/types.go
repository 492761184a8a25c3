package ussd

// Request carries one turn of a dialog as posted by the telecom gateway.
type Request struct {
	// SessionID is the gateway-assigned opaque identifier for the dialog. It
	// is stable across the turns of one dialog and never reused afterwards.
	SessionID string
	// ServiceCode is the dial string (e.g. "*384#"). Informational only.
	ServiceCode string
	// PhoneNumber identifies the caller in international format.
	PhoneNumber string
	// Text is the cumulative, "*"-joined history of everything the caller has
	// typed this dialog. Empty on the first turn.
	Text string
}

// Response is the plain-text reply for one turn. The zero value continues the
// dialog with an empty prompt, which no caller of this package produces.
type Response struct {
	// Final terminates the dialog when true; the gateway accepts no further
	// input for the session after an END response.
	Final bool
	Text  string
}

// Continue builds a response that keeps the dialog open for another turn.
func Continue(text string) Response { return Response{Text: text} }

// End builds a terminal response.
func End(text string) Response { return Response{Final: true, Text: text} }

// Render returns the gateway wire form with the leading CON/END marker.
func (r Response) Render() string {
	if r.Final {
		return "END " + r.Text
	}
	return "CON " + r.Text
}
