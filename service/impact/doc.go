// Package impact implements the impact analyzer. Given the operation a step
// intends to perform it produces a risk assessment (impact level, warnings,
// required checks, optional typed confirmation phrase) together with a
// human-readable preview of what will change.
//
// The analyzer fails closed: an operation kind it cannot classify is
// assessed as critical and requires manual review.
package impact
