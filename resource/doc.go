// Package resource provides handle tables for Go values that cross the
// engine boundary.
//
// The engine can only carry integers and pointers, so a Go value that is
// passed through it (an external address capsule, a router handler, a
// user function) is stored in a Table and referenced by a Handle. Handle 0
// is reserved and matches the engine's NULL.
//
//	table := resource.NewTable()
//	h := table.Intern(resource.KindCapsule, myValue)
//	v, ok := table.GetKind(h, resource.KindCapsule)
//
// Intern returns the same handle for equal comparable values, so a host
// object passed twice is the same external address on the engine side.
//
// # Pinning
//
// Pin keeps an entry alive while a callback is running against it;
// Remove fails on a pinned handle until Unpin.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(observer)
//
// Values are not garbage collected. Call Remove, Clear or Close when the
// engine can no longer reference them.
package resource
