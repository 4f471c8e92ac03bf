package kernel

// Table sizes. MaxProcs bounds the process table; MaxFDs bounds both the
// open-file table and each per-process descriptor table.
const (
	MaxProcs = 32
	MaxFDs   = 128
)

// Config wires the kernel to its board: the UART character sink, the timer
// block, the interrupt controller, the processor-level IRQ unmask, and the
// entry symbol of the console program dispatched at boot.
type Config struct {
	UART         UART
	Timer        Timer
	GIC          IntCtrl
	EnableIRQ    func()
	ConsoleEntry uint32
}

// Kernel owns every mutable table of the system: the process table, the
// open-file table, the stack arena, the tick counter and the identity of
// the executing process. Handlers mutate it only with IRQs masked (the trap
// discipline), so none of the state carries locks.
type Kernel struct {
	uart         UART
	timer        Timer
	gic          IntCtrl
	enableIRQ    func()
	consoleEntry uint32

	procTab     [MaxProcs]PCB
	openFileTab [MaxFDs]FileEntry
	stacks      *arena

	time             uint32
	currentProcesses int
	executing        int32
}

// New returns an unbooted kernel; Reset brings it up.
func New(cfg Config) *Kernel {
	return &Kernel{
		uart:         cfg.UART,
		timer:        cfg.Timer,
		gic:          cfg.GIC,
		enableIRQ:    cfg.EnableIRQ,
		consoleEntry: cfg.ConsoleEntry,
		stacks:       newArena(),
		executing:    -1,
	}
}

// Executing returns the PCB of the currently executing process, or nil
// before boot.
func (k *Kernel) Executing() *PCB {
	if k.executing < 0 {
		return nil
	}
	return &k.procTab[k.executing]
}

// Proc returns the PCB for pid, or nil when pid is out of range.
func (k *Kernel) Proc(pid PID) *PCB {
	if pid < 0 || pid >= MaxProcs {
		return nil
	}
	return &k.procTab[pid]
}

// OpenFile returns the open-file table entry for fd, or nil out of range.
func (k *Kernel) OpenFile(fd int32) *FileEntry {
	if fd < 0 || fd >= MaxFDs {
		return nil
	}
	return &k.openFileTab[fd]
}

// Time returns the global tick counter.
func (k *Kernel) Time() uint32 { return k.time }

// CurrentProcesses returns the live process count (ready + executing).
func (k *Kernel) CurrentProcesses() int { return k.currentProcesses }

// StackBytes exposes the arena bytes backing [addr, addr+n); nil when the
// range is outside the arena. The trap shim uses it to seed stack images.
func (k *Kernel) StackBytes(addr, n uint32) []byte {
	return k.stacks.slice(addr, n)
}

// Reset is the reset-vector handler: it programs the timer and interrupt
// controller, initialises the tables, builds the console PCB and dispatches
// into it.
func (k *Kernel) Reset(ctx *Context) {
	k.uart.Putc('R')

	if k.timer != nil {
		k.timer.SetLoad(TimerLoadValue)
		k.timer.SetCtrl(Timer32Bit)
		k.timer.SetCtrl(k.timer.Ctrl() | TimerPeriodic)
		k.timer.SetCtrl(k.timer.Ctrl() | TimerIntEnable)
		k.timer.SetCtrl(k.timer.Ctrl() | TimerEnable)
	}
	if k.gic != nil {
		k.gic.SetPriorityMask(GICPriorityMask)
		k.gic.SetEnable1(k.gic.Enable1() | GICTimerEnable1)
		k.gic.EnableCPU()
		k.gic.EnableDist()
	}
	if k.enableIRQ != nil {
		k.enableIRQ()
	}

	for i := range k.procTab {
		k.procTab[i].Status = StatusInvalid
	}

	for i := int32(0); i < MaxFDs; i++ {
		if i < 3 {
			k.openFileTab[i].RefCount = 1
			if i == 0 {
				k.openFileTab[i].Flag = RDONLY
			} else {
				k.openFileTab[i].Flag = WRONLY
			}
		} else {
			k.openFileTab[i] = FileEntry{}
		}
	}

	console := &k.procTab[0]
	console.clear()
	console.PID = 0
	console.Status = StatusReady
	console.TOS = tos(0)
	console.Ctx.CPSR = CPSRUser
	console.Ctx.PC = k.consoleEntry
	console.Ctx.SP = console.TOS
	console.LastExec = k.time
	console.Niceness = 0
	console.clearFDs()

	k.currentProcesses++

	k.dispatch(ctx, nil, console)
}

// HandleIRQ is the IRQ-vector handler. It acknowledges the interrupt,
// reschedules when the source is the timer, and signals completion.
func (k *Kernel) HandleIRQ(ctx *Context) {
	id := k.gic.Ack()

	if id == GICSourceTimer {
		k.timer.ClearInt()
		k.schedule(ctx)
	}

	k.gic.EOI(id)
}

// schedule picks the next process to run and dispatches to it.
//
// The score of a READY process is its age (ticks since it last ran) minus
// its niceness, so waiting processes gain priority monotonically and low
// niceness ages faster. The incumbent seeds the contest with niceness-1 so
// ties break away from it, and the >= comparison makes later equal-score
// candidates displace earlier ones.
func (k *Kernel) schedule(ctx *Context) {
	ex := k.Executing()
	next := int32(ex.PID)
	best := ex.Niceness - 1

	for i := int32(0); i < MaxProcs; i++ {
		p := &k.procTab[i]
		if p.Status != StatusReady {
			continue
		}
		score := int32(k.time-p.LastExec) - p.Niceness
		if score >= best {
			best = score
			next = i
		}
	}

	k.dispatch(ctx, ex, &k.procTab[next])
}

// dispatch performs the context swap: the live record is saved into the
// outgoing PCB and replaced by the incoming PCB's, statuses and the tick
// counter are updated, and a [prev->next] trace line goes to the UART.
func (k *Kernel) dispatch(ctx *Context, prev, next *PCB) {
	k.uart.Putc('[')
	if prev != nil {
		prev.Ctx = *ctx
		k.printPID(prev.PID)
	} else {
		k.uart.Putc('?')
	}
	k.uart.Putc('-')
	k.uart.Putc('>')
	if next != nil {
		*ctx = next.Ctx
		k.printPID(next.PID)
	} else {
		k.uart.Putc('?')
	}
	k.uart.Putc(']')

	if prev != nil {
		prev.LastExec = k.time
		if prev.Status == StatusExecuting {
			prev.Status = StatusReady
		}
	}
	if next != nil {
		next.Status = StatusExecuting
		k.executing = int32(next.PID)
	}
	k.time++
}
