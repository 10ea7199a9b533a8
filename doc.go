// Package fluxgate gates workflow steps behind deployment mode policy and
// human approval.
//
// Every step of a run is assessed by the impact analyzer, then activated in
// order. Steps whose mode and impact require approval wait for an approve or
// reject decision, or time out once the approval window elapses. Each
// decision is appended to an audit sink before the step moves on. Running
// steps are handed to an optional external executor.
//
//	srv, _ := fluxgate.New(fluxgate.WithExecutor(engine))
//	rt := srv.Runtime()
//	run, _ := rt.StartRun(ctx, definition)
//	pending, _ := rt.ListPending(ctx)
//	_, err := rt.Approve(ctx, run.ID, pending[0].StepID, pending[0].Submission("alice"))
//
// Transitions of one run are serialized; different runs proceed in
// parallel.
package fluxgate
