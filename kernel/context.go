package kernel

// CPSRUser is the processor status word for user mode with IRQ unmasked.
const CPSRUser = 0x50

// Context is the saved execution state of a process at trap entry: the 13
// general-purpose registers plus sp, lr, pc and the status word. The trap
// shim materialises one on mode entry and restores from it on return.
//
// The scheduler treats it as opaque: it is only ever copied whole between
// the live record and a PCB.
type Context struct {
	CPSR uint32
	PC   uint32
	GPR  [13]uint32
	SP   uint32
	LR   uint32
}

// Arg returns general-purpose register n, the n-th syscall argument slot.
func (c *Context) Arg(n int) uint32 { return c.GPR[n] }

// SetResult writes a syscall return value into gpr0 per the ABI.
func (c *Context) SetResult(v int32) { c.GPR[0] = uint32(v) }

// Result reads gpr0 as a signed syscall return value.
func (c *Context) Result() int32 { return int32(c.GPR[0]) }
