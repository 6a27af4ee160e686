// Package registry keeps the client's in-memory catalog of coordinator
// state: the known agents with secondary indices for capability, status,
// and name lookups, and the room set delivered during authentication.
//
// All reads return defensive copies; mutating a returned value never
// affects registry state. Secondary indices are rebuilt atomically with
// the primary map, so a lookup can never surface an agent the primary
// map no longer holds.
package registry
