// Package model contains the data model shared by the approval gate, the
// execution timeline and the audit log: steps, runs, decisions and the closed
// enumerations (deployment mode, step status, impact level) that describe
// them.
//
// All enumerations are closed: decoding an unknown value from JSON or YAML
// fails instead of producing an unrepresentable state.
package model
