package recovery

import (
	"fmt"

	"pdfopt/observability"
)

// StrictStrategy fails on the first structural error.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(err error, location Location) Action {
	return ActionFail
}

// LenientStrategy patches over recoverable damage and records what it saw.
type LenientStrategy struct {
	Logger observability.Logger
	Errors []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(err error, location Location) Action {
	wrapped := fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err)
	s.Errors = append(s.Errors, wrapped)
	observability.Default(s.Logger).Warn("recovered from structural error",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Error("err", err))
	return ActionFix
}
