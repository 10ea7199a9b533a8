// Package tracing wraps OpenTelemetry so that gate transitions, run starts
// and impact analysis can be traced without the rest of the code base
// importing the upstream packages directly.
package tracing
