// Package statemachine implements a small guarded transition table. The
// session's authentication flow is modeled as states and events wired
// into a Machine; firing an event runs the matching transition's guards
// and actions and moves the current state. Transitions not present in
// the table are rejected, which is what keeps a late auth result from a
// torn-down connection from corrupting a fresh one.
package statemachine
