// Package checkin owns the guest registry and the scan log, and implements
// every rule that changes them.
//
// Evaluate is the pure check-in decision. Registry applies decisions made
// locally as well as records replicated from other stations, using the same
// guest-mutation rule in both cases so that all stations converge.
//
// A Registry is not safe for concurrent use; the sync engine serializes all
// access on its event loop.
package checkin
