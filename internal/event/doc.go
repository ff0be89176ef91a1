// Package event provides the internal notification bus that connects
// runbar's registries, selection state, host bridge, and status bar.
//
// Events carry hierarchical dot-notation topics ("registry.task.refreshed",
// "selection.changed") and subscriptions may use wildcards: "*" matches
// exactly one segment, "**" matches zero or more.
//
// Architecture:
//
//	Publisher ──► Bus ──┬── sync delivery (caller goroutine)
//	                    └── async queue ──► workers ──► handlers
//
// Delivery modes:
//   - Publish / PublishAsync queue the event and return immediately.
//     When the queue is full the event is dropped and counted.
//   - PublishSync invokes matching sync handlers before returning.
//
// Handler panics are recovered and counted; a panicking handler never
// takes down the bus. Stats() exposes the counters.
package event
