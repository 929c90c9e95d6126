package kfmt

import (
	"earlyalloc/kernel"
	"earlyalloc/kernel/cpu"
)

const panicBorder = "\n-----------------------------------\n"

var (
	// cpuHaltFn stops the machine after a fault has been reported. Tests
	// replace it so that Panic returns.
	cpuHaltFn = cpu.Halt

	// runtimeFault carries faults that are not *kernel.Error values. It is
	// reused so that reporting a fault does not allocate.
	runtimeFault = kernel.Error{Module: "rt"}
)

// Panic reports e and halts the CPU; it never returns. e may be a
// *kernel.Error, an error or a string. The last two are reported under the
// "rt" module. A nil e only prints the halt banner.
func Panic(e interface{}) {
	fault := asKernelError(e)

	Printf(panicBorder)
	if fault != nil {
		Printf("[%s] unrecoverable error: %s\n", fault.Module, fault.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf(panicBorder)

	cpuHaltFn()
}

func asKernelError(e interface{}) *kernel.Error {
	switch v := e.(type) {
	case *kernel.Error:
		return v
	case error:
		runtimeFault.Message = v.Error()
	case string:
		runtimeFault.Message = v
	default:
		return nil
	}
	return &runtimeFault
}
