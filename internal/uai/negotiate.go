// internal/uai/negotiate.go
package uai

// Prompt literals sent by the controller during the login handshake.
// They are not newline-delimited; the trailing NUL is part of the
// connected banner and must be consumed before line parsing resumes.
const (
	userPrompt      = "User:"
	passwordPrompt  = "Password:"
	connectedBanner = "Connected:\n\x00"
)

// negotiationState tracks progress through the login handshake.
type negotiationState int

const (
	negotiationIdle negotiationState = iota
	negotiationUserSent
	negotiationPasswordSent
	negotiationOperational
	negotiationFailed
)

// negotiationEvent tells the connection manager what a handshake
// transition requires of it.
type negotiationEvent int

const (
	eventNone negotiationEvent = iota
	eventSendUser
	eventSendPassword
	eventReady
)

// negotiator walks the connection through the login handshake. It
// consumes prompt tokens from the reassembler until the connected banner
// arrives or a handshake violation fails the session.
type negotiator struct {
	state negotiationState
}

// step consumes at most one prompt token from the front of the buffer.
// It returns eventNone when the buffered content does not begin with a
// complete prompt, and a handshake error on an out-of-order or repeated
// prompt.
func (n *negotiator) step(r *reassembler) (negotiationEvent, error) {
	switch {
	case r.consumeToken(userPrompt):
		if n.state != negotiationIdle {
			n.state = negotiationFailed
			return eventNone, ErrInvalidUser
		}
		n.state = negotiationUserSent
		return eventSendUser, nil

	case r.consumeToken(passwordPrompt):
		switch n.state {
		case negotiationIdle:
			n.state = negotiationFailed
			return eventNone, ErrProtocolViolation
		case negotiationPasswordSent:
			n.state = negotiationFailed
			return eventNone, ErrInvalidPassword
		}
		n.state = negotiationPasswordSent
		return eventSendPassword, nil

	case r.consumeToken(connectedBanner):
		n.state = negotiationOperational
		return eventReady, nil
	}

	return eventNone, nil
}

// operational reports whether the handshake has completed.
func (n *negotiator) operational() bool {
	return n.state == negotiationOperational
}
