package kernel

// Stack layout constants. The console owns the region below TOSConsole; user
// processes P1..P31 descend from TOSUser, 8 KiB apiece, so process i has
// tos = TOSUser - (i-1)*StackSize. All regions live inside one arena.
const (
	StackSize  = 0x2000
	TOSConsole = 0x70200000
	TOSUser    = 0x70300000

	arenaBase = TOSConsole - StackSize
	arenaSize = TOSUser - arenaBase
)

// arena is the pre-reserved stack memory for every process, addressed with
// the same virtual addresses the context records carry.
type arena struct {
	mem []byte
}

func newArena() *arena {
	return &arena{mem: make([]byte, arenaSize)}
}

// tos returns the top-of-stack address for the PCB at index i.
func tos(i int) uint32 {
	if i == 0 {
		return TOSConsole
	}
	return TOSUser - uint32(i-1)*StackSize
}

// contains reports whether [addr, addr+n) lies inside the arena.
func (a *arena) contains(addr uint32, n uint32) bool {
	return addr >= arenaBase && addr+n <= arenaBase+uint32(len(a.mem)) && addr+n >= addr
}

// slice returns the arena bytes backing [addr, addr+n), or nil when the
// range falls outside the arena.
func (a *arena) slice(addr uint32, n uint32) []byte {
	if !a.contains(addr, n) {
		return nil
	}
	off := addr - arenaBase
	return a.mem[off : off+n]
}

// blit copies n bytes from src to dst, both arena addresses. Used by fork to
// replicate the active portion of the parent stack into the child region.
func (a *arena) blit(dst, src uint32, n uint32) {
	d := a.slice(dst, n)
	s := a.slice(src, n)
	if d == nil || s == nil {
		return
	}
	copy(d, s)
}
