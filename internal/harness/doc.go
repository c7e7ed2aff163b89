// Package harness runs sync scenarios: several stations share one manual
// in-memory relay, execute scripted operations, exchange frames in a seeded
// random interleaving and are then checked against assertions and a golden
// snapshot of their final state.
//
// A scenario is a YAML file:
//
//	name: host-two-clients
//	description: Two clients check guests in concurrently and converge.
//	seed: 42
//	stations: [HOST, A, B]
//	steps:
//	  - {station: HOST, add_guest: {id: A1, name: Alice}}
//	  - {station: HOST, host: true}
//	  - {station: A, join: HOST}
//	  - {deliver: all}
//	  - {station: A, scan: {guest: A1, day: 1}, expect: {status: SUCCESS}}
//	  - {deliver: all}
//	assertions:
//	  - {type: converged}
//	  - {type: guest, station: HOST, guest: A1, day: 1, checked_in: true}
//
// Every station runs a real engine. Stations share one stepping clock, take
// their name as origin id and mint log ids as "<station>-<seq>", so the
// final state of a scenario is reproducible and golden files stay readable.
//
// Frames only move on deliver steps. After each frame the harness waits for
// every station to drain its queue, which makes a run with a given seed
// deterministic.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
