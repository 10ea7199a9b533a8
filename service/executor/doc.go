// Package executor defines the contract of the external engine that runs the
// operation of a step once the step is running. Implementations report the
// outcome through the returned error; the runtime turns it into a completed
// or failed transition.
package executor
