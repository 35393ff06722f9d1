// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The extraction engine lives here:
//
//   - DocumentIndex indexes the elements of a pass by category and id
//   - ReferenceResolver dereferences idrefs and expands compositions
//   - FieldExtractor flattens entity properties along dotted paths
//   - ConstraintFilter applies per-type value constraints
//   - TransformService runs sources through the engine into sinks
//
// Services are pure Go with no CGO dependencies.
package services
