// Package diag defines the error taxonomy of the control core and the sinks
// that surface it. None of these errors stop the main loop.
package diag

import (
	"errors"
	"fmt"
)

var (
	ErrStackCall       = errors.New("stack call failed")
	ErrHardwareFault   = errors.New("stack hardware fault")
	ErrProtocolAnomaly = errors.New("protocol anomaly")
)

// StackCallFailure is a stack call that returned a non-OK result.
type StackCallFailure struct {
	Op  string
	Err error
}

func (e *StackCallFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StackCallFailure) Unwrap() []error {
	return []error{ErrStackCall, e.Err}
}

// HardwareFault is an internal hardware error reported by the stack.
type HardwareFault struct {
	Code uint8
}

func (e *HardwareFault) Error() string {
	return fmt.Sprintf("hardware error 0x%02x", e.Code)
}

func (e *HardwareFault) Unwrap() error {
	return ErrHardwareFault
}

// ProtocolAnomaly is an event that would violate a lifecycle invariant.
type ProtocolAnomaly struct {
	Detail string
}

func (e *ProtocolAnomaly) Error() string {
	return e.Detail
}

func (e *ProtocolAnomaly) Unwrap() error {
	return ErrProtocolAnomaly
}

// Kind returns the taxonomy name of err, or "other".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrStackCall):
		return "stack-call-failure"
	case errors.Is(err, ErrHardwareFault):
		return "hardware-fault"
	case errors.Is(err, ErrProtocolAnomaly):
		return "protocol-anomaly"
	default:
		return "other"
	}
}

// StackCall wraps err as a StackCallFailure for op, or returns nil.
func StackCall(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StackCallFailure{Op: op, Err: err}
}
