// Package bt implements the behaviour tree used to sequence the robot tasks.
//
// A Node wraps a Task and tracks its lifecycle: Initialise runs when the node
// becomes active and Update runs on every tick while it stays active. Leaves
// carry real work, composites (Sequence, Selector, Parallel) derive their
// status from their children. Nothing blocks: a task that needs more time
// returns Running and gets ticked again on the next cycle.
package bt
