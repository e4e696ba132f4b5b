package ratelimit

import "fmt"

// Scope names what a limit counts
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeUser     Scope = "user"
	ScopeRunStart Scope = "run_start"
)

// Policy is a fixed-window limit
type Policy struct {
	Scope         Scope
	Limit         int64 // Requests allowed per window
	WindowSeconds int   // Time window in seconds
}

// DefaultGlobalPolicy caps total API traffic across all users
var DefaultGlobalPolicy = Policy{
	Scope:         ScopeGlobal,
	Limit:         1000,
	WindowSeconds: 60,
}

// RunStartPolicy limits how many runs one user may start per minute
func RunStartPolicy(perMinute int64) Policy {
	return Policy{
		Scope:         ScopeRunStart,
		Limit:         perMinute,
		WindowSeconds: 60,
	}
}

// Enabled reports whether the policy limits anything
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.WindowSeconds > 0
}

// Key builds the counter key for subject under this policy
func (p Policy) Key(subject string) string {
	if subject == "" {
		return fmt.Sprintf("rate_limit:%s", p.Scope)
	}
	return fmt.Sprintf("rate_limit:%s:%s", p.Scope, subject)
}
