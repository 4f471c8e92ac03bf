package board

// SP804 register map (Timer1 bank) from the timer base at 0x101E2000, and
// the Timer1Ctrl bits the kernel programs.
const (
	SP804Base = 0x101E2000

	Timer1Load   = 0x00
	Timer1Value  = 0x04
	Timer1Ctrl   = 0x08
	Timer1IntClr = 0x0C

	CtrlOneShot  = 1 << 0
	Ctrl32Bit    = 1 << 1
	CtrlIntEn    = 1 << 5
	CtrlPeriodic = 1 << 6
	CtrlEn       = 1 << 7
)

// SP804 models Timer1 of the dual-timer block: a down-counter with periodic
// reload and an interrupt line. Only the machine loop steps it, so it
// carries no locks.
type SP804 struct {
	load  uint32
	value uint32
	ctrl  uint32
	irq   bool
}

func NewSP804() *SP804 { return &SP804{} }

// SetLoad programs the reload value; hardware also loads the counter.
func (t *SP804) SetLoad(v uint32) {
	t.load = v
	t.value = v
}

// Ctrl returns the Timer1 control register.
func (t *SP804) Ctrl() uint32 { return t.ctrl }

// SetCtrl writes the Timer1 control register.
func (t *SP804) SetCtrl(v uint32) { t.ctrl = v }

// ClearInt acknowledges the timer interrupt (Timer1IntClr write).
func (t *SP804) ClearInt() { t.irq = false }

// IRQAsserted reports whether the interrupt line is raised.
func (t *SP804) IRQAsserted() bool { return t.irq && t.ctrl&CtrlIntEn != 0 }

// Step advances the counter by n emulated cycles, reloading (periodic mode)
// or parking at zero (one-shot) on underflow.
func (t *SP804) Step(n uint32) {
	if t.ctrl&CtrlEn == 0 {
		return
	}
	for n > 0 {
		if t.value > n {
			t.value -= n
			return
		}
		n -= t.value
		t.irq = true
		if t.ctrl&CtrlPeriodic != 0 && t.load > 0 {
			t.value = t.load
		} else {
			t.value = 0
			return
		}
	}
}
