// Package policy implements the deployment mode policy: it decides whether a
// step must pause for a human decision given its mode and assessed impact,
// and resolves the effective mode of steps that do not declare one.
package policy
