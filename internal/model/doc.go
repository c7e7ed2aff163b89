// Package model defines the records replicated between check-in stations.
//
// Two collections make up the whole shared state:
//   - Guests: the registry, keyed by ticket id (the QR payload)
//   - ScanLogs: one immutable record per scan attempt, keyed by log id
//
// Both are append/update-only. A Guest changes only through its two
// per-day check-in fields; a ScanLog never changes after creation.
//
// Log ids are content-addressed (see LogID) so that two stations can mint
// ids without coordination and still never collide in practice.
package model
