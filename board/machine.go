package board

import (
	"verso/hal"
	"verso/kernel"
	"verso/user"
)

// Program is a user program body. The entry symbols the kernel sees map to
// these through the machine's program table.
type Program func(*user.Env)

// Entry symbols are allocated from this base, one slot per program.
const (
	entryBase   = 0x00010000
	entryStride = 0x100
)

// Config describes the software side of the board: the console program
// dispatched at boot, the exec-able program table, and emulation pacing.
type Config struct {
	Console  Program
	Programs map[string]Program

	// UARTSink overrides the default UART output routing (terminal +
	// serial); tests use it to capture the trace.
	UARTSink func(b byte)

	// CyclesPerStep is how many emulated timer cycles one Step covers.
	// The default approximates a 60 Hz host loop against the one-second
	// timer reload.
	CyclesPerStep uint32

	// TrapBudget bounds supervisor calls serviced per Step.
	TrapBudget int
}

// trap is one supervisor-call rendezvous between a process goroutine and
// the machine loop.
type trap struct {
	pid   kernel.PID
	call  kernel.Syscall
	child func(*user.Env)
	idle  bool
	reply chan int32
}

// proc is the machine-side execution state for one PCB: the goroutine gate.
// A started proc is always either running (machine blocked on traps) or
// parked on its pending trap's reply channel.
type proc struct {
	fn      Program
	started bool
	dead    bool
	idle    bool
	pending *trap
}

// Machine is the emulated Versatile-class board: the devices, the live
// context record, and the trap shim that runs user programs as gated
// goroutines. It is the concrete form of the trap vectors and character
// driver the kernel treats as external collaborators.
type Machine struct {
	h     hal.HAL
	k     *kernel.Kernel
	uart  *PL011
	timer *SP804
	gic   *GIC
	term  *termSink

	ctx   kernel.Context
	irqOn bool

	byEntry map[uint32]Program
	byName  map[string]uint32

	procs [kernel.MaxProcs]*proc
	traps chan *trap

	cyclesPerStep uint32
	trapBudget    int
}

// NewMachine wires the devices, the kernel and the program table. h may be
// nil (tests); the terminal and input pumps are then disabled.
func NewMachine(h hal.HAL, cfg Config) *Machine {
	m := &Machine{
		h:             h,
		timer:         NewSP804(),
		gic:           NewGIC(),
		byEntry:       make(map[uint32]Program),
		byName:        make(map[string]uint32),
		traps:         make(chan *trap),
		cyclesPerStep: cfg.CyclesPerStep,
		trapBudget:    cfg.TrapBudget,
	}
	if m.cyclesPerStep == 0 {
		m.cyclesPerStep = kernel.TimerLoadValue / 60
	}
	if m.trapBudget == 0 {
		m.trapBudget = 256
	}

	if h != nil {
		if d := h.Display(); d != nil {
			if fb := d.Framebuffer(); fb != nil {
				m.term = newTermSink(fb)
			}
		}
	}

	sink := cfg.UARTSink
	if sink == nil {
		sink = m.routeUART
	}
	m.uart = NewPL011(sink)

	consoleEntry := m.register("console", cfg.Console)
	for name, p := range cfg.Programs {
		m.register(name, p)
	}

	m.k = kernel.New(kernel.Config{
		UART:         m.uart,
		Timer:        m.timer,
		GIC:          m.gic,
		EnableIRQ:    func() { m.irqOn = true },
		ConsoleEntry: consoleEntry,
	})
	return m
}

// Kernel exposes the kernel state (tests, diagnostics).
func (m *Machine) Kernel() *kernel.Kernel { return m.k }

// UART exposes the UART device model.
func (m *Machine) UART() *PL011 { return m.uart }

// Timer exposes the timer device model.
func (m *Machine) Timer() *SP804 { return m.timer }

// GIC exposes the interrupt controller model.
func (m *Machine) GIC() *GIC { return m.gic }

func (m *Machine) register(name string, p Program) uint32 {
	if p == nil {
		return 0
	}
	entry := uint32(entryBase + len(m.byEntry)*entryStride)
	m.byEntry[entry] = p
	m.byName[name] = entry
	return entry
}

// routeUART fans transmitted bytes out to the framebuffer terminal and the
// host serial.
func (m *Machine) routeUART(b byte) {
	if m.term != nil {
		m.term.writeByte(b)
	}
	if m.h != nil {
		if s := m.h.Serial(); s != nil {
			s.Write([]byte{b})
		}
	}
}

// Boot runs the reset vector and starts the host serial pump.
func (m *Machine) Boot() {
	m.k.Reset(&m.ctx)

	if m.h == nil {
		return
	}
	if s := m.h.Serial(); s != nil {
		go func() {
			var buf [64]byte
			for {
				n, err := s.Read(buf[:])
				for i := 0; i < n; i++ {
					m.uart.Feed(buf[i])
				}
				if err != nil {
					return
				}
			}
		}()
	}
}

// Step advances the board by one host frame: host input is pumped into the
// UART, the timer advances, a due timer interrupt preempts, and the
// executing process runs until it traps (bounded by the trap budget).
func (m *Machine) Step() error {
	m.pumpInput()

	// A new frame wakes idle (WFI) processes.
	for _, pr := range m.procs {
		if pr != nil {
			pr.idle = false
		}
	}

	m.advanceTimer()
	if m.timer.IRQAsserted() {
		m.gic.Raise(kernel.GICSourceTimer)
	}

	for budget := m.trapBudget; budget > 0; budget-- {
		if m.irqOn && m.gic.HasPending() {
			m.k.HandleIRQ(&m.ctx)
		}
		if !m.runSlice() {
			break
		}
	}

	if m.term != nil {
		m.term.flush()
	}
	return nil
}

// cyclesPerBaseTick scales the HAL's 1ms base tick to emulated timer
// cycles so the one-second reload expires about once per wall-clock second.
const cyclesPerBaseTick = kernel.TimerLoadValue / 1000

// advanceTimer converts elapsed host time into emulated timer cycles. With
// no HAL attached (tests) it falls back to a fixed per-step budget.
func (m *Machine) advanceTimer() {
	if m.h != nil {
		if ts := m.h.Time(); ts != nil {
			var n uint32
		drain:
			for {
				select {
				case <-ts.Ticks():
					n++
				default:
					break drain
				}
			}
			m.timer.Step(n * cyclesPerBaseTick)
			return
		}
	}
	m.timer.Step(m.cyclesPerStep)
}

// runSlice resumes the executing process and services its next trap.
// It returns false when no runnable goroutine backs the executing PCB.
func (m *Machine) runSlice() bool {
	ex := m.k.Executing()
	if ex == nil {
		return false
	}
	pr := m.procs[ex.PID]
	if ex.PID == 0 && pr == nil {
		pr = m.startConsole(ex)
	}
	if pr == nil || pr.dead || pr.idle {
		return false
	}

	if !pr.started {
		pr.started = true
		env := user.NewEnv(&procSys{m: m, pid: ex.PID}, ex.PID)
		go m.runProcess(pr, env)
	} else {
		t := pr.pending
		if t == nil {
			return false
		}
		pr.pending = nil
		t.reply <- m.ctx.Result()
	}

	t := <-m.traps
	m.handleTrap(t)
	return true
}

func (m *Machine) startConsole(ex *kernel.PCB) *proc {
	fn := m.byEntry[ex.Ctx.PC]
	if fn == nil {
		return nil
	}
	pr := &proc{fn: fn}
	m.procs[0] = pr
	return pr
}

// handleTrap services one supervisor call. Most calls leave the caller's
// reply pending; it is delivered when the scheduler next selects the
// caller. Death (exit, kill) is signalled by closing the reply channel.
func (m *Machine) handleTrap(t *trap) {
	caller := m.procs[t.pid]

	if t.idle {
		// WFI: no supervisor call; the process sleeps until the next
		// frame (or an interrupt switches away from it).
		caller.idle = true
		caller.pending = t
		return
	}

	m.k.HandleSVC(&m.ctx, t.call)

	switch c := t.call.(type) {
	case kernel.Fork:
		if pid := kernel.PID(m.ctx.Result()); pid > 0 && t.child != nil {
			m.procs[pid] = &proc{fn: t.child}
		}
		caller.pending = t

	case kernel.Exit:
		caller.dead = true
		close(t.reply)

	case kernel.Kill:
		if m.ctx.Result() == 0 {
			if vp := m.procs[c.PID]; vp != nil {
				vp.dead = true
				if vp.pending != nil {
					close(vp.pending.reply)
					vp.pending = nil
				}
			}
		}
		if c.PID == t.pid {
			// Self-kill: the caller's own gate closes.
			close(t.reply)
			return
		}
		caller.pending = t

	default:
		caller.pending = t
	}
}

// runProcess is the goroutine wrapper for one process: it runs program
// bodies, follows exec jumps, exits on fall-through, and absorbs the
// kill unwind.
func (m *Machine) runProcess(pr *proc, env *user.Env) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(user.Killed); ok {
				return
			}
			panic(r)
		}
	}()

	fn := pr.fn
	for fn != nil {
		fn = m.runBody(fn, env)
	}
	env.Exit(0)
}

// runBody executes one program image; an exec trap unwinds here and
// resolves the next image through the program table.
func (m *Machine) runBody(fn Program, env *user.Env) (next Program) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if j, ok := r.(user.ExecJump); ok {
			next = m.byEntry[j.Entry]
			return
		}
		panic(r)
	}()
	fn(env)
	return nil
}

// pumpInput drains host keyboard events into the UART receive FIFO.
func (m *Machine) pumpInput() {
	if m.h == nil {
		return
	}
	in := m.h.Input()
	if in == nil {
		return
	}
	kbd := in.Keyboard()
	if kbd == nil {
		return
	}
	for {
		select {
		case ev := <-kbd.Events():
			if !ev.Press {
				continue
			}
			switch {
			case ev.Rune != 0 && ev.Rune < 0x80:
				m.uart.Feed(byte(ev.Rune))
			case ev.Code == hal.KeyEnter:
				m.uart.Feed('\r')
			case ev.Code == hal.KeyBackspace:
				m.uart.Feed(0x08)
			}
		default:
			return
		}
	}
}

// procSys is the per-process trap surface handed to user code.
type procSys struct {
	m   *Machine
	pid kernel.PID
}

func (s *procSys) Syscall(call kernel.Syscall) int32 {
	t := &trap{pid: s.pid, call: call, reply: make(chan int32, 1)}
	s.m.traps <- t
	res, ok := <-t.reply
	if !ok {
		panic(user.Killed{})
	}
	return res
}

func (s *procSys) ForkCall(child func(*user.Env)) int32 {
	t := &trap{pid: s.pid, call: kernel.Fork{}, child: child, reply: make(chan int32, 1)}
	s.m.traps <- t
	res, ok := <-t.reply
	if !ok {
		panic(user.Killed{})
	}
	return res
}

func (s *procSys) Getc() (byte, bool) { return s.m.uart.Getc() }

func (s *procSys) Idle() {
	t := &trap{pid: s.pid, idle: true, reply: make(chan int32, 1)}
	s.m.traps <- t
	if _, ok := <-t.reply; !ok {
		panic(user.Killed{})
	}
}

func (s *procSys) Lookup(name string) (uint32, bool) {
	entry, ok := s.m.byName[name]
	return entry, ok
}

// ProcInfo snapshots one process table slot. Safe while the caller runs:
// the machine is parked in its trap receive, so the tables are quiescent.
func (s *procSys) ProcInfo(pid kernel.PID) (kernel.PCB, bool) {
	p := s.m.k.Proc(pid)
	if p == nil {
		return kernel.PCB{}, false
	}
	return *p, true
}
