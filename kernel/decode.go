package kernel

import "encoding/binary"

// DecodeSVC decodes the register-level supervisor-call ABI into a Syscall
// variant: the immediate operand selects the call and gpr0..3 carry the
// arguments, with buffer addresses resolved against the stack arena.
// Unknown operands return ok=false and are treated as a silent no-op.
func (k *Kernel) DecodeSVC(imm uint8, ctx *Context) (call Syscall, ok bool) {
	switch imm {
	case SVCYield:
		return Yield{}, true
	case SVCWrite:
		return Write{
			FD:   int32(ctx.Arg(0)),
			Data: k.stacks.slice(ctx.Arg(1), ctx.Arg(2)),
		}, true
	case SVCRead:
		return Read{
			FD:  int32(ctx.Arg(0)),
			Buf: k.stacks.slice(ctx.Arg(1), ctx.Arg(2)),
		}, true
	case SVCFork:
		return Fork{}, true
	case SVCExit:
		return Exit{Status: int32(ctx.Arg(0))}, true
	case SVCExec:
		return Exec{Entry: ctx.Arg(0)}, true
	case SVCKill:
		return Kill{PID: PID(ctx.Arg(0)), Signal: int32(ctx.Arg(1))}, true
	case SVCNice:
		return Nice{PID: PID(ctx.Arg(0)), Value: int32(ctx.Arg(1))}, true
	case SVCPipe:
		return MakePipe{Addr: ctx.Arg(0)}, true
	case SVCClose:
		return Close{FD: int32(ctx.Arg(0))}, true
	default:
		return nil, false
	}
}

// writePipeDes stores the two descriptors at the ABI destination address.
func (k *Kernel) writePipeDes(addr uint32, fdRead, fdWrite int32) {
	dst := k.stacks.slice(addr, 8)
	if dst == nil {
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(fdRead))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(fdWrite))
}
