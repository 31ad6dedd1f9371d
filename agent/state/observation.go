package state

import "time"

// ErrorKind classifies a failed observation.
type ErrorKind string

const (
	ErrorInputIncomplete ErrorKind = "input_incomplete"
	ErrorOutOfScope      ErrorKind = "out_of_scope"
	ErrorAdapterTimeout  ErrorKind = "adapter_timeout"
	ErrorAdapter         ErrorKind = "adapter_error"
	ErrorPolicyViolation ErrorKind = "policy_violation"
	ErrorBookingFailed   ErrorKind = "booking_failed"
	ErrorDial            ErrorKind = "dial_error"
)

// Observation is the typed result of one executed action. Adapter failures
// are carried here instead of being returned as errors.
type Observation struct {
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args,omitempty"`
	OK         bool           `json:"ok"`
	Summary    string         `json:"summary,omitempty"`
	Result     any            `json:"result,omitempty"`
	ErrorKind  ErrorKind      `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}

func (o Observation) Failed() bool {
	return !o.OK
}

// Clone copies the args map. Result is treated as immutable.
func (o Observation) Clone() Observation {
	if o.Args != nil {
		args := make(map[string]any, len(o.Args))
		for k, v := range o.Args {
			args[k] = v
		}
		o.Args = args
	}
	return o
}
