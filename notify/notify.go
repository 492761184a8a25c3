// Package notify defines the outbound SMS dispatch boundary. Delivery is
// best-effort: a failed or partial send is reported in the returned Report
// (or logged, for the async wrapper) and never propagated into the dialog a
// caller is holding open.
package notify

import "context"

// DeliveryResult is the per-recipient outcome of one send.
type DeliveryResult struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Cost      string `json:"cost,omitempty"`
}

// Report aggregates one Send call.
type Report struct {
	// Queued is true when the send was accepted for asynchronous delivery and
	// per-recipient results are not yet known.
	Queued  bool             `json:"queued,omitempty"`
	Results []DeliveryResult `json:"results,omitempty"`
}

// Succeeded counts recipients with a successful delivery status.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Failed counts recipients that did not get the message.
func (r *Report) Failed() int { return len(r.Results) - r.Succeeded() }

// StatusSuccess is the provider-reported status for a delivered message.
const StatusSuccess = "Success"

// Dispatcher sends one message to a set of recipients. Implementations MUST
// be safe for concurrent use. A non-nil error means the send as a whole could
// not be attempted; partial failure is expressed through the Report instead.
type Dispatcher interface {
	Send(ctx context.Context, recipients []string, message string) (*Report, error)
}

// Func adapts a function to the Dispatcher interface.
type Func func(ctx context.Context, recipients []string, message string) (*Report, error)

func (f Func) Send(ctx context.Context, recipients []string, message string) (*Report, error) {
	return f(ctx, recipients, message)
}
