package sflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotRunning     = errors.New("sFlow agent not running")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidRate    = errors.New("invalid sampling rate")
	ErrAllocation     = errors.New("allocating sFlow agent")
)

// AdapterError reports a failed hardware adapter call.
type AdapterError struct {
	Op   string
	Port PortID
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Port == GlobalPort {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s on port %d: %v", e.Op, e.Port, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
