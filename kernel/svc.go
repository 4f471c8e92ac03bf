package kernel

// HandleSVC is the supervisor-call handler: it dispatches on the decoded
// variant, performs the call against the kernel tables, and leaves the
// result in gpr0 of the live context record.
func (k *Kernel) HandleSVC(ctx *Context, call Syscall) {
	switch c := call.(type) {
	case Yield:
		k.schedule(ctx)

	case Write:
		k.svcWrite(ctx, c)

	case Read:
		k.svcRead(ctx, c)

	case Fork:
		k.svcFork(ctx)

	case Exit:
		k.svcExit(ctx)

	case Exec:
		k.uart.Putc('E')
		ctx.PC = c.Entry
		ctx.SP = k.Executing().TOS

	case Kill:
		k.svcKill(ctx, c)

	case Nice:
		k.svcNice(ctx, c)

	case MakePipe:
		k.svcPipe(ctx, c)

	case Close:
		ctx.SetResult(k.closeFD(c.FD, k.Executing().PID))

	default:
		// Unknown operand: silent no-op.
	}
}

func (k *Kernel) svcWrite(ctx *Context, c Write) {
	if c.FD < 0 {
		k.print("\nERR: cannot address negative fd")
		ctx.SetResult(-1)
		return
	}

	switch c.FD {
	case 0: // stdin
		ctx.SetResult(0)

	case 1: // stdout
		for _, b := range c.Data {
			k.uart.Putc(b)
		}
		ctx.SetResult(int32(len(c.Data)))

	case 2: // stderr
		k.print("\nwrite error")
		ctx.SetResult(-1)

	default:
		entry := k.OpenFile(c.FD)
		if entry == nil || entry.File == nil {
			k.print("\nERR: bad fd")
			ctx.SetResult(-1)
			return
		}
		ctx.SetResult(int32(entry.File.Enqueue(c.Data)))
	}
}

func (k *Kernel) svcRead(ctx *Context, c Read) {
	if c.FD < 0 {
		k.print("\nERR: cannot address negative fd")
		ctx.SetResult(-1)
		return
	}

	switch c.FD {
	case 0: // stdin
		k.print("\nread stdin")
		ctx.SetResult(0)

	case 1: // stdout
		k.print("\nread stdout")
		ctx.SetResult(0)

	case 2: // stderr
		k.print("\nread error")
		ctx.SetResult(-1)

	default:
		entry := k.OpenFile(c.FD)
		if entry == nil || entry.File == nil {
			k.print("\nERR: bad fd")
			ctx.SetResult(-1)
			return
		}
		ctx.SetResult(int32(entry.File.Dequeue(c.Buf)))
	}
}

func (k *Kernel) svcFork(ctx *Context) {
	k.uart.Putc('F')

	if k.currentProcesses >= MaxProcs {
		k.print("\nERR: process table full")
		ctx.SetResult(-1)
		return
	}

	iNew := k.currentProcesses
	k.currentProcesses++

	// Prefer reclaiming a terminated slot; slot 0 stays the console's.
	for i := 1; i < MaxProcs; i++ {
		if k.procTab[i].Status == StatusTerminated {
			iNew = i
			break
		}
	}

	parent := k.Executing()
	child := &k.procTab[iNew]
	child.clear()

	child.PID = PID(iNew)
	child.Status = StatusReady
	child.TOS = tos(iNew)

	child.Ctx = *ctx

	// Child stack usage mirrors the parent's current usage.
	stackHeight := parent.TOS - ctx.SP
	child.Ctx.SP = child.TOS - stackHeight
	k.stacks.blit(child.Ctx.SP, ctx.SP, stackHeight)

	child.LastExec = k.time
	child.Niceness = parent.Niceness

	for i := range parent.FDTab {
		fd := parent.FDTab[i]
		child.FDTab[i] = fd
		if fd >= 0 {
			k.openFileTab[fd].RefCount++
		}
	}

	ctx.SetResult(int32(child.PID))
	child.Ctx.SetResult(0)
}

func (k *Kernel) svcExit(ctx *Context) {
	k.uart.Putc('X')

	ex := k.Executing()
	k.closeAllFDs(ex.PID)

	ex.Status = StatusTerminated
	k.currentProcesses--
	k.schedule(ctx)
}

func (k *Kernel) svcKill(ctx *Context, c Kill) {
	k.uart.Putc('K')

	victim := k.Proc(c.PID)
	if victim == nil || (victim.Status != StatusReady && victim.Status != StatusExecuting) {
		k.print("\nERR: no such process")
		ctx.SetResult(-1)
		return
	}

	k.closeAllFDs(c.PID)
	k.procTab[c.PID].Status = StatusTerminated
	k.currentProcesses--

	ctx.SetResult(0)
}

func (k *Kernel) svcNice(ctx *Context, c Nice) {
	k.uart.Putc('N')

	if c.PID < 0 || c.PID >= MaxProcs {
		k.print("\nERR: no such process")
		ctx.SetResult(-1)
		return
	}

	v := c.Value
	if v < -19 {
		v = -19
	} else if v > 20 {
		v = 20
	}
	k.procTab[c.PID].Niceness = v

	ctx.SetResult(v)
}

func (k *Kernel) svcPipe(ctx *Context, c MakePipe) {
	p := NewPipe()

	fdRead := k.openFD(p, RDONLY)
	fdWrite := k.openFD(p, WRONLY)

	if fdRead == -1 || fdWrite == -1 {
		k.print("\npipe failed")
		pid := k.Executing().PID
		if fdRead >= 0 {
			k.closeFD(fdRead, pid)
		}
		if fdWrite >= 0 {
			k.closeFD(fdWrite, pid)
		}
		ctx.SetResult(-1)
		return
	}

	if c.Des != nil {
		c.Des[0] = fdRead
		c.Des[1] = fdWrite
	}
	if c.Addr != 0 {
		k.writePipeDes(c.Addr, fdRead, fdWrite)
	}
	ctx.SetResult(0)
}
