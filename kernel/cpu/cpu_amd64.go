// Package cpu exposes the handful of privileged instructions that the early
// kernel code depends on.
package cpu

// Halt disables interrupts and stops instruction execution. Halt never returns.
func Halt()
