// Package engine implements a check-in station's node actor.
//
// The engine owns the guest registry and is the only code that mutates it.
// It persists every change through the Local Store and replicates changes
// over at most one sync session, in which the station is either the HOST
// (star centre) or a CLIENT of one.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Public operations (Scan, AddGuest, StartHosting, ...) and transport
// callbacks all become events in one unbounded FIFO queue, processed one
// at a time by Run. This ensures:
// - No locks around the registry
// - Per-link message order is the order of application
// - Events from a session that was torn down are recognised by their
// generation and discarded
//
// Sync Protocol:
//  1. A HOST registers its address namespace-code on the relay.
//  2. When a CLIENT's link opens, the HOST sends INIT with its snapshot and
//     the CLIENT replaces both collections.
//  3. Local scans and new guests are sent as NEW_SCAN / NEW_GUEST; the HOST
//     applies each one and forwards the identical bytes to every other peer.
//  4. Receivers merge with insert-if-absent, so repeats are no-ops.
//
// Failures never stop the loop: they are logged and raised as operator
// alerts. Nothing is retried.
package engine
