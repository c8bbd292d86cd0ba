package models

import "fmt"

// MissingDependencyError reports a scoring backend that is not available
// in this environment. Install names the step that makes it available.
type MissingDependencyError struct {
	Component string
	Install   string
	Cause     error
}

func (e *MissingDependencyError) Error() string {
	msg := fmt.Sprintf("%s is not available. %s", e.Component, e.Install)
	if e.Cause != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

func (e *MissingDependencyError) Unwrap() error {
	return e.Cause
}
