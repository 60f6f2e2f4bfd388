// Package dispatch routes named operations to handlers and wraps every
// outcome, including handler panics, in a uniform content envelope.
package dispatch
