// Package processor hosts the workers that run the operations of running
// steps. Every worker consumes jobs from a queue, calls the executor (retrying
// per the configured backoff) and reports the outcome so that the run can
// advance.
package processor
