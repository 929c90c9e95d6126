// Package kernel contains the types shared by every kernel sub-system.
package kernel

// Error describes a kernel error. Kernel errors are defined as global
// variables pointing to an Error value and are compared by identity. The early
// allocators run before the Go allocator is available so errors.New cannot be
// used to create them.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
