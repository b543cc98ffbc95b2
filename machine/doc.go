// Package machine provides the sandboxed execution host for guest programs
// running inside a simulated computer.
//
// # Reading Guide
//
// Start with these files to understand the execution kernel:
//   - machine.go: lifecycle (stopped → booting → running, faulted) and the tick scheduler
//   - boot.go: firmware lookup and the first unit of guest work
//   - budget.go: the per-tick instruction and wall-clock budget
//
// # Architecture
//
// The machine package defines interfaces and bridge types; implementations live in
// sub-packages:
//   - machine/luavm/: the gopher-lua guest runtime and its sandbox
//   - machine/device/: concrete components (eeprom, gpu, screen, robot)
//   - machine/computer/: the computer case driving rescans and ticks
//   - machine/trace/: lifecycle trace recording
//
// Runtime packages register themselves via init() with RegisterRuntime, so
// a binary enables Lua guests by importing machine/luavm.
//
// # Key Interfaces
//
//   - Component: addressable capability with a data-driven method table
//   - Host: energy, identity and persisted tags of the housing block
//   - DeviceDirectory: enumerates installed components for rescans
//   - Runtime / Program: compile guest code and resume it under a budget
package machine
