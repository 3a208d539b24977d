package agent

import "errors"

// Sentinel errors for the Agent Adapter (spec.md section 4.3/6).
var (
	// ErrInvocation is returned when the agent process exits non-zero and its
	// output file is missing or unreadable.
	ErrInvocation = errors.New("agent: invocation failed")

	// ErrProtocol is returned when the agent's output file is readable but its
	// body does not decode into the expected result shape.
	ErrProtocol = errors.New("agent: malformed output")

	// ErrUnknownRole is returned when Config has no entry for a requested role.
	ErrUnknownRole = errors.New("agent: unknown role")
)
