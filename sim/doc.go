// Package sim provides the shared value types of the gang simulator.
//
// # Reading Guide
//
// Start with these files to understand the simulation:
//   - config.go: the parameter bag every process shares, its validation and its
//     serialized form for child processes
//   - target.go: the static target table and its attribute weights
//   - gang/controller.go: the plan cycle (preparing, ready barrier, resolving, reacting)
//
// # Architecture
//
// The sim package defines value types; the moving parts live in sub-packages:
//   - sim/region/: fixed-layout records in a shared byte region (mmap or heap)
//   - sim/psync/: process-shared mutex, condition variable and semaphores
//   - sim/msgq/: routing keys, message codec, SysV and in-memory channels
//   - sim/intel/: covert-intelligence and outcome model (pure functions)
//   - sim/gang/: one gang: controller, member goroutines, handshake responder
//   - sim/police/: one officer per gang, planting informants and arresting
//   - sim/game/: owner bootstrap, clock, game-ending conditions, in-process runner
//   - sim/trace/: event records, summary, SQLite results store, JSONL export
//
// Gangs and officers never call each other. Everything they share goes through
// the region, the counter semaphores and the message channel, so the same code
// runs as goroutine groups in one process or as separate processes.
//
// # Determinism
//
// Every goroutine draws from its own stream of a PartitionedRNG keyed by
// subsystem name. Scheduling still interleaves goroutines freely, so runs with
// the same seed share their initial state, not their full history.
package sim
