// Package metrics defines the events recorded by the control loop and the
// sink interfaces that receive them. Sinks like PromSink and InfluxSink live
// in infra/metrics and register themselves with the factory; several sinks
// can be combined with NewMultiSink. Optional event kinds are exposed as
// separate recorder interfaces so a sink only implements what it stores.
package metrics
