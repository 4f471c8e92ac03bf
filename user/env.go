package user

import "verso/kernel"

// Sys is the trap surface the board exposes to one user process: a
// synchronous supervisor-call gate plus the character driver and the
// program symbol table.
type Sys interface {
	Syscall(call kernel.Syscall) int32
	ForkCall(child func(*Env)) int32
	Idle()
	Getc() (byte, bool)
	Lookup(name string) (uint32, bool)
	ProcInfo(pid kernel.PID) (kernel.PCB, bool)
}

// Killed unwinds a process goroutine whose PCB was terminated.
type Killed struct{}

// ExecJump unwinds to the process wrapper so it can enter a new image.
type ExecJump struct {
	Entry uint32
}

// Standard descriptors.
const (
	Stdin  int32 = 0
	Stdout int32 = 1
	Stderr int32 = 2
)

// Env is the user-mode library: thin wrappers around the supervisor-call
// ABI for one process.
type Env struct {
	sys Sys
	pid kernel.PID
}

// NewEnv binds a trap surface to a process.
func NewEnv(sys Sys, pid kernel.PID) *Env {
	return &Env{sys: sys, pid: pid}
}

// PID returns the calling process's identifier.
func (e *Env) PID() kernel.PID { return e.pid }

// Yield gives up the CPU; it returns when the scheduler next selects the
// caller.
func (e *Env) Yield() {
	e.sys.Syscall(kernel.Yield{})
}

// Write sends p to a descriptor and returns the byte count or -1.
func (e *Env) Write(fd int32, p []byte) int32 {
	return e.sys.Syscall(kernel.Write{FD: fd, Data: p})
}

// WriteString is Write for string literals.
func (e *Env) WriteString(fd int32, s string) int32 {
	return e.Write(fd, []byte(s))
}

// Read fills p from a descriptor and returns the byte count or -1. Reads
// are non-blocking: an empty pipe returns 0.
func (e *Env) Read(fd int32, p []byte) int32 {
	return e.sys.Syscall(kernel.Read{FD: fd, Buf: p})
}

// Fork duplicates the caller. The child runs the given continuation with
// its own Env; the parent receives the child PID, or -1 on failure.
func (e *Env) Fork(child func(*Env)) int32 {
	return e.sys.ForkCall(child)
}

// Exec replaces the caller's image with the program at entry. It does not
// return to the caller.
func (e *Env) Exec(entry uint32) {
	e.sys.Syscall(kernel.Exec{Entry: entry})
	panic(ExecJump{Entry: entry})
}

// Exit terminates the caller. It does not return.
func (e *Env) Exit(status int32) {
	e.sys.Syscall(kernel.Exit{Status: status})
	panic(Killed{})
}

// Kill unconditionally terminates pid. The signal value is carried but
// ignored by the kernel.
func (e *Env) Kill(pid kernel.PID, signal int32) int32 {
	return e.sys.Syscall(kernel.Kill{PID: pid, Signal: signal})
}

// Nice sets pid's niceness, clamped to [-19, 20], and returns the stored
// value.
func (e *Env) Nice(pid kernel.PID, value int32) int32 {
	return e.sys.Syscall(kernel.Nice{PID: pid, Value: value})
}

// Pipe allocates a pipe and returns its read and write descriptors.
func (e *Env) Pipe() (fdRead, fdWrite int32, ok bool) {
	var des [2]int32
	if e.sys.Syscall(kernel.MakePipe{Des: &des}) != 0 {
		return -1, -1, false
	}
	return des[0], des[1], true
}

// Close releases a descriptor.
func (e *Env) Close(fd int32) int32 {
	return e.sys.Syscall(kernel.Close{FD: fd})
}

// Idle parks the process until the next interrupt opportunity (WFI). The
// kernel is not involved; the CPU simply stops fetching for this process.
func (e *Env) Idle() {
	e.sys.Idle()
}

// Getc polls the character driver for one byte of input.
func (e *Env) Getc() (byte, bool) {
	return e.sys.Getc()
}

// Lookup resolves a program name to its entry symbol.
func (e *Env) Lookup(name string) (uint32, bool) {
	return e.sys.Lookup(name)
}

// ProcInfo returns a snapshot of the process table slot for pid. Like Getc
// it goes through the shim rather than a supervisor call; the console's ps
// command is its consumer.
func (e *Env) ProcInfo(pid kernel.PID) (kernel.PCB, bool) {
	return e.sys.ProcInfo(pid)
}
