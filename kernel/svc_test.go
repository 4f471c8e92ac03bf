package kernel

import (
	"bytes"
	"strings"
	"testing"
)

func TestWritePolicies(t *testing.T) {
	r := newTestRig(t)

	tcs := []struct {
		name string
		fd   int32
		data string
		want int32
		diag string
	}{
		{name: "negative fd", fd: -1, data: "x", want: -1, diag: "cannot address negative fd"},
		{name: "stdin", fd: 0, data: "x", want: 0},
		{name: "stdout", fd: 1, data: "hello", want: 5, diag: "hello"},
		{name: "stderr", fd: 2, data: "payload", want: -1, diag: "write error"},
		{name: "unopened fd", fd: 9, data: "x", want: -1, diag: "bad fd"},
	}

	for _, tc := range tcs {
		r.uart.reset()
		r.k.HandleSVC(r.ctx, Write{FD: tc.fd, Data: []byte(tc.data)})
		if got := r.ctx.Result(); got != tc.want {
			t.Fatalf("%s: write returned %d, want %d", tc.name, got, tc.want)
		}
		if tc.diag != "" && !strings.Contains(r.uart.String(), tc.diag) {
			t.Fatalf("%s: uart %q missing %q", tc.name, r.uart.String(), tc.diag)
		}
	}
}

func TestReadPolicies(t *testing.T) {
	r := newTestRig(t)

	tcs := []struct {
		name string
		fd   int32
		want int32
		diag string
	}{
		{name: "negative fd", fd: -2, want: -1, diag: "cannot address negative fd"},
		{name: "stdin", fd: 0, want: 0, diag: "read stdin"},
		{name: "stdout", fd: 1, want: 0, diag: "read stdout"},
		{name: "stderr", fd: 2, want: -1, diag: "read error"},
		{name: "unopened fd", fd: 7, want: -1, diag: "bad fd"},
	}

	var buf [8]byte
	for _, tc := range tcs {
		r.uart.reset()
		r.k.HandleSVC(r.ctx, Read{FD: tc.fd, Buf: buf[:]})
		if got := r.ctx.Result(); got != tc.want {
			t.Fatalf("%s: read returned %d, want %d", tc.name, got, tc.want)
		}
		if !strings.Contains(r.uart.String(), tc.diag) {
			t.Fatalf("%s: uart %q missing %q", tc.name, r.uart.String(), tc.diag)
		}
	}
}

func TestPipeSyscallRoundTrip(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	var des [2]int32
	k.HandleSVC(r.ctx, MakePipe{Des: &des})
	if r.ctx.Result() != 0 {
		t.Fatalf("pipe returned %d", r.ctx.Result())
	}
	if des[0] != 3 || des[1] != 4 {
		t.Fatalf("pipe descriptors %v, want [3 4]", des)
	}
	if k.OpenFile(3).Flag != RDONLY || k.OpenFile(4).Flag != WRONLY {
		t.Fatalf("pipe flags %v %v", k.OpenFile(3).Flag, k.OpenFile(4).Flag)
	}
	if k.OpenFile(3).File == nil || k.OpenFile(3).File != k.OpenFile(4).File {
		t.Fatal("both descriptors must share one pipe")
	}

	k.HandleSVC(r.ctx, Write{FD: des[1], Data: []byte("HI")})
	if r.ctx.Result() != 2 {
		t.Fatalf("write returned %d, want 2", r.ctx.Result())
	}

	var buf [4]byte
	k.HandleSVC(r.ctx, Read{FD: des[0], Buf: buf[:]})
	if r.ctx.Result() != 2 || !bytes.Equal(buf[:2], []byte("HI")) {
		t.Fatalf("read returned %d %q", r.ctx.Result(), buf[:2])
	}

	k.HandleSVC(r.ctx, Read{FD: des[0], Buf: buf[:]})
	if r.ctx.Result() != 0 {
		t.Fatalf("drained read returned %d, want 0", r.ctx.Result())
	}

	checkInvariants(t, k)
}

func TestCloseSymmetry(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	var des [2]int32
	k.HandleSVC(r.ctx, MakePipe{Des: &des})

	k.HandleSVC(r.ctx, Close{FD: des[0]})
	if r.ctx.Result() != 0 {
		t.Fatalf("close read end returned %d", r.ctx.Result())
	}
	k.HandleSVC(r.ctx, Close{FD: des[1]})
	if r.ctx.Result() != 0 {
		t.Fatalf("close write end returned %d", r.ctx.Result())
	}

	for fd := des[0]; fd <= des[1]; fd++ {
		entry := k.OpenFile(fd)
		if entry.RefCount != 0 || entry.File != nil {
			t.Fatalf("fd %d not released: %+v", fd, entry)
		}
	}
	for _, fd := range k.Executing().FDTab {
		if fd != -1 {
			t.Fatalf("descriptor %d survived close", fd)
		}
	}

	// The table is indistinguishable from its pre-open state: a fresh pipe
	// claims the same descriptors again.
	k.HandleSVC(r.ctx, MakePipe{Des: &des})
	if des[0] != 3 || des[1] != 4 {
		t.Fatalf("reopened descriptors %v, want [3 4]", des)
	}
	checkInvariants(t, k)
}

func TestCloseRejectsOutOfRange(t *testing.T) {
	r := newTestRig(t)

	for _, fd := range []int32{-1, MaxFDs, MaxFDs + 7} {
		r.k.HandleSVC(r.ctx, Close{FD: fd})
		if r.ctx.Result() != -1 {
			t.Fatalf("close(%d) returned %d, want -1", fd, r.ctx.Result())
		}
	}
}

func TestForkDuplicatesDescriptors(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	var des [2]int32
	k.HandleSVC(r.ctx, MakePipe{Des: &des})

	k.HandleSVC(r.ctx, Fork{})
	childPID := PID(r.ctx.Result())
	if childPID != 1 {
		t.Fatalf("fork returned %d, want 1", childPID)
	}

	parent := k.Proc(0)
	child := k.Proc(childPID)
	if child.Status != StatusReady {
		t.Fatalf("child status %s", child.Status)
	}
	if child.Ctx.Result() != 0 {
		t.Fatalf("child gpr0 = %d, want 0", child.Ctx.Result())
	}
	for i := range parent.FDTab {
		if parent.FDTab[i] != child.FDTab[i] {
			t.Fatalf("fdTab[%d]: parent %d child %d", i, parent.FDTab[i], child.FDTab[i])
		}
	}
	if k.OpenFile(3).RefCount != 2 || k.OpenFile(4).RefCount != 2 {
		t.Fatalf("refCounts %d %d, want 2 2", k.OpenFile(3).RefCount, k.OpenFile(4).RefCount)
	}
	if child.Niceness != parent.Niceness {
		t.Fatalf("child niceness %d, want %d", child.Niceness, parent.Niceness)
	}
	checkInvariants(t, k)
}

func TestForkCopiesStackImage(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	// Simulate a parent that has pushed 64 bytes.
	parent := k.Executing()
	r.ctx.SP = parent.TOS - 64
	image := k.StackBytes(r.ctx.SP, 64)
	for i := range image {
		image[i] = byte(i * 3)
	}

	k.HandleSVC(r.ctx, Fork{})
	child := k.Proc(PID(r.ctx.Result()))

	if got, want := child.TOS-child.Ctx.SP, parent.TOS-r.ctx.SP; got != want {
		t.Fatalf("child stack usage %d, want %d", got, want)
	}
	if child.TOS != TOSUser-uint32(child.PID-1)*StackSize {
		t.Fatalf("child tos %#x", child.TOS)
	}
	if !bytes.Equal(k.StackBytes(child.Ctx.SP, 64), image) {
		t.Fatal("child stack image differs from parent")
	}
	if child.Ctx.PC != r.ctx.PC || child.Ctx.CPSR != r.ctx.CPSR {
		t.Fatal("child context not copied from parent")
	}
}

func TestForkTableFull(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	for i := 1; i < MaxProcs; i++ {
		k.HandleSVC(r.ctx, Fork{})
		if r.ctx.Result() != int32(i) {
			t.Fatalf("fork %d returned %d", i, r.ctx.Result())
		}
	}

	r.uart.reset()
	k.HandleSVC(r.ctx, Fork{})
	if r.ctx.Result() != -1 {
		t.Fatalf("fork on full table returned %d, want -1", r.ctx.Result())
	}
	if !strings.Contains(r.uart.String(), "process table full") {
		t.Fatalf("missing diagnostic: %q", r.uart.String())
	}
	checkInvariants(t, k)
}

func TestExitReclamation(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	var des [2]int32
	k.HandleSVC(r.ctx, MakePipe{Des: &des})
	k.HandleSVC(r.ctx, Fork{})
	childPID := PID(r.ctx.Result())

	// Let the scheduler move into the child, then have it exit.
	k.HandleSVC(r.ctx, Yield{})
	if k.Executing().PID != childPID {
		t.Fatalf("executing %d after yield, want child %d", k.Executing().PID, childPID)
	}
	k.HandleSVC(r.ctx, Exit{Status: 0})

	if k.Proc(childPID).Status != StatusTerminated {
		t.Fatalf("child status %s, want terminated", k.Proc(childPID).Status)
	}
	if k.Executing().PID != 0 {
		t.Fatalf("executing %d after child exit, want 0", k.Executing().PID)
	}
	if k.CurrentProcesses() != 1 {
		t.Fatalf("currentProcesses %d, want 1", k.CurrentProcesses())
	}
	if k.OpenFile(3).RefCount != 1 || k.OpenFile(4).RefCount != 1 {
		t.Fatalf("refCounts after exit %d %d, want 1 1", k.OpenFile(3).RefCount, k.OpenFile(4).RefCount)
	}

	// The terminated slot is reused by the next fork.
	k.HandleSVC(r.ctx, Fork{})
	if PID(r.ctx.Result()) != childPID {
		t.Fatalf("fork reused slot %d, want %d", r.ctx.Result(), childPID)
	}
	checkInvariants(t, k)
}

func TestKillClosesDescriptors(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	var des [2]int32
	k.HandleSVC(r.ctx, MakePipe{Des: &des})
	k.HandleSVC(r.ctx, Fork{})
	childPID := PID(r.ctx.Result())

	k.HandleSVC(r.ctx, Kill{PID: childPID, Signal: 9})
	if r.ctx.Result() != 0 {
		t.Fatalf("kill returned %d, want 0", r.ctx.Result())
	}
	if k.Proc(childPID).Status != StatusTerminated {
		t.Fatalf("victim status %s", k.Proc(childPID).Status)
	}
	// The caller keeps running: kill does not reschedule.
	if k.Executing().PID != 0 {
		t.Fatalf("executing %d after kill, want 0", k.Executing().PID)
	}
	if k.OpenFile(3).RefCount != 1 || k.OpenFile(4).RefCount != 1 {
		t.Fatalf("refCounts after kill %d %d", k.OpenFile(3).RefCount, k.OpenFile(4).RefCount)
	}

	k.HandleSVC(r.ctx, Kill{PID: MaxProcs + 1, Signal: 0})
	if r.ctx.Result() != -1 {
		t.Fatalf("kill of bad pid returned %d, want -1", r.ctx.Result())
	}
	checkInvariants(t, k)
}

func TestExecReplacesImage(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	var des [2]int32
	k.HandleSVC(r.ctx, MakePipe{Des: &des})
	k.HandleSVC(r.ctx, Nice{PID: 0, Value: 7})

	r.ctx.SP = k.Executing().TOS - 128
	const entry = 0x00020000
	k.HandleSVC(r.ctx, Exec{Entry: entry})

	if r.ctx.PC != entry {
		t.Fatalf("pc = %#x, want %#x", r.ctx.PC, uint32(entry))
	}
	if r.ctx.SP != k.Executing().TOS {
		t.Fatalf("sp = %#x, want tos", r.ctx.SP)
	}
	// Descriptors and niceness survive exec.
	if k.OpenFile(3).RefCount != 1 || k.OpenFile(4).RefCount != 1 {
		t.Fatal("exec dropped descriptors")
	}
	if k.Executing().Niceness != 7 {
		t.Fatalf("exec changed niceness to %d", k.Executing().Niceness)
	}
}

func TestNiceClamping(t *testing.T) {
	r := newTestRig(t)

	tcs := []struct {
		in   int32
		want int32
	}{
		{in: 0, want: 0},
		{in: -19, want: -19},
		{in: 20, want: 20},
		{in: -100, want: -19},
		{in: 100, want: 20},
		{in: 5, want: 5},
	}

	for _, tc := range tcs {
		r.k.HandleSVC(r.ctx, Nice{PID: 0, Value: tc.in})
		if got := r.ctx.Result(); got != tc.want {
			t.Fatalf("nice(%d) returned %d, want %d", tc.in, got, tc.want)
		}
		if got := r.k.Proc(0).Niceness; got != tc.want {
			t.Fatalf("nice(%d) stored %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPipeExhaustionUnwinds(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	// Claim all but one open-file slot so the second open of a pipe fails.
	filler := NewPipe()
	for fd := int32(3); fd < MaxFDs-1; fd++ {
		if k.openFD(filler, RDONLY) < 0 {
			t.Fatalf("setup open %d failed", fd)
		}
	}

	before := *k.OpenFile(MaxFDs - 1)
	var des [2]int32
	r.uart.reset()
	k.HandleSVC(r.ctx, MakePipe{Des: &des})
	if r.ctx.Result() != -1 {
		t.Fatalf("pipe with one free slot returned %d, want -1", r.ctx.Result())
	}
	if !strings.Contains(r.uart.String(), "pipe failed") {
		t.Fatalf("missing diagnostic: %q", r.uart.String())
	}

	after := *k.OpenFile(MaxFDs - 1)
	if before != after || after.RefCount != 0 {
		t.Fatalf("partial pipe not unwound: %+v", after)
	}
}

func TestDecodeSVC(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	// Stage a write buffer inside the caller's stack region.
	addr := k.Executing().TOS - 16
	copy(k.StackBytes(addr, 2), "HI")

	ctx := r.ctx
	ctx.GPR[0] = 5
	ctx.GPR[1] = addr
	ctx.GPR[2] = 2
	call, ok := k.DecodeSVC(SVCWrite, ctx)
	if !ok {
		t.Fatal("write did not decode")
	}
	w, isWrite := call.(Write)
	if !isWrite || w.FD != 5 || string(w.Data) != "HI" {
		t.Fatalf("decoded %#v", call)
	}

	ctx.GPR[0] = 3
	ctx.GPR[1] = 99
	call, ok = k.DecodeSVC(SVCKill, ctx)
	if !ok {
		t.Fatal("kill did not decode")
	}
	if kl := call.(Kill); kl.PID != 3 || kl.Signal != 99 {
		t.Fatalf("decoded %#v", call)
	}

	if _, ok := k.DecodeSVC(0x42, ctx); ok {
		t.Fatal("unknown operand must not decode")
	}
}

func TestPipeABIDestination(t *testing.T) {
	r := newTestRig(t)
	k := r.k

	addr := k.Executing().TOS - 8
	r.ctx.GPR[0] = addr
	call, ok := k.DecodeSVC(SVCPipe, r.ctx)
	if !ok {
		t.Fatal("pipe did not decode")
	}
	k.HandleSVC(r.ctx, call)
	if r.ctx.Result() != 0 {
		t.Fatalf("pipe returned %d", r.ctx.Result())
	}

	des := k.StackBytes(addr, 8)
	fdRead := int32(uint32(des[0]) | uint32(des[1])<<8 | uint32(des[2])<<16 | uint32(des[3])<<24)
	fdWrite := int32(uint32(des[4]) | uint32(des[5])<<8 | uint32(des[6])<<16 | uint32(des[7])<<24)
	if fdRead != 3 || fdWrite != 4 {
		t.Fatalf("ABI destination holds [%d %d], want [3 4]", fdRead, fdWrite)
	}
}
