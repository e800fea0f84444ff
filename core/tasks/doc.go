// Package tasks holds the leaf behaviours of the shopping robot and assembles
// them into the root behaviour tree.
//
// Leaves read robot state through a World, which is fed by bus subscriptions,
// and act through the waypoint controller or the Actuators publishers. The
// root selector tries, in priority order:
//
//	acquire   grab a target within close range and stow it in the basket
//	approach  drive in front of a target seen further away
//	patrol    drive the patrol route to discover targets
package tasks
