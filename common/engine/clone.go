package engine

import (
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
)

// IDFunc mints globally unique identifiers
type IDFunc func() string

// NewID is the default IDFunc
func NewID() string {
	return uuid.NewString()
}

// cloneTemplate returns a deep copy so derived templates never share
// slices with the caller's snapshot
func cloneTemplate(t ProcessTemplate) ProcessTemplate {
	return deepcopy.Copy(t).(ProcessTemplate)
}

func cloneRun(r ProcessRun) ProcessRun {
	return deepcopy.Copy(r).(ProcessRun)
}

func orDefaultClock(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.New()
	}
	return c
}

func orDefaultIDs(f IDFunc) IDFunc {
	if f == nil {
		return NewID
	}
	return f
}
