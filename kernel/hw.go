package kernel

// UART is the character sink the kernel traces through. Putc blocks until
// the device accepts the byte.
type UART interface {
	Putc(b byte)
}

// Timer is the SP804 Timer1 programming surface the reset handler drives.
type Timer interface {
	SetLoad(v uint32)
	Ctrl() uint32
	SetCtrl(v uint32)
	ClearInt()
}

// IntCtrl is the GICv2 surface the kernel touches: the CPU interface
// (priority mask, ack/EOI, enable) and the distributor (set-enable bank 1,
// enable).
type IntCtrl interface {
	SetPriorityMask(v uint32)
	Enable1() uint32
	SetEnable1(v uint32)
	EnableCPU()
	EnableDist()
	Ack() uint32
	EOI(id uint32)
}

// SP804 Timer1 control bits and the reload value programmed at reset
// (2^20 ticks, about one second).
const (
	TimerLoadValue = 0x00100000
	Timer32Bit     = 0x00000002
	TimerPeriodic  = 0x00000040
	TimerIntEnable = 0x00000020
	TimerEnable    = 0x00000080
)

// GIC constants: the priority mask opened at reset, the SPI line the timer
// interrupts on, and its bit in ISENABLER1 (lines 32..63).
const (
	GICPriorityMask = 0x000000F0
	GICSourceTimer  = 36
	GICTimerEnable1 = 0x00000010
	GICSpuriousIRQ  = 1023
)
