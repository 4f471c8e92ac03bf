package board

// GICv2 base addresses and the register offsets this board models.
const (
	GICCPUBase  = 0x1E000000
	GICDistBase = 0x1E001000

	GICCCTLR = 0x00
	GICCPMR  = 0x04
	GICCIAR  = 0x0C
	GICCEOIR = 0x10

	GICDCTLR       = 0x000
	GICDISENABLER1 = 0x104

	spuriousID = 1023
)

// GIC models a GICv2 with one set-enable bank for SPI lines 32..63, which
// is all this board routes (the timer is line 36). Pending state is
// level-ish: a line stays pending until acknowledged.
type GIC struct {
	cpuCTLR  uint32
	distCTLR uint32
	pmr      uint32
	enable1  uint32
	pending1 uint32
	active   uint32
}

func NewGIC() *GIC { return &GIC{} }

// SetPriorityMask writes GICC_PMR.
func (g *GIC) SetPriorityMask(v uint32) { g.pmr = v }

// Enable1 reads GICD_ISENABLER1 (lines 32..63).
func (g *GIC) Enable1() uint32 { return g.enable1 }

// SetEnable1 writes GICD_ISENABLER1.
func (g *GIC) SetEnable1(v uint32) { g.enable1 = v }

// EnableCPU writes GICC_CTLR = 1.
func (g *GIC) EnableCPU() { g.cpuCTLR = 1 }

// EnableDist writes GICD_CTLR = 1.
func (g *GIC) EnableDist() { g.distCTLR = 1 }

// Raise asserts an interrupt line in the 32..63 bank.
func (g *GIC) Raise(line uint32) {
	if line < 32 || line > 63 {
		return
	}
	g.pending1 |= 1 << (line - 32)
}

// HasPending reports whether an enabled line is pending and both interfaces
// are on.
func (g *GIC) HasPending() bool {
	if g.cpuCTLR == 0 || g.distCTLR == 0 || g.pmr == 0 {
		return false
	}
	return g.pending1&g.enable1 != 0
}

// Ack reads GICC_IAR: the lowest pending enabled line, or the spurious ID
// when none qualifies. The returned line moves from pending to active.
func (g *GIC) Ack() uint32 {
	if !g.HasPending() {
		return spuriousID
	}
	ready := g.pending1 & g.enable1
	for bit := uint32(0); bit < 32; bit++ {
		if ready&(1<<bit) == 0 {
			continue
		}
		g.pending1 &^= 1 << bit
		g.active |= 1 << bit
		return 32 + bit
	}
	return spuriousID
}

// EOI writes GICC_EOIR, completing the active interrupt.
func (g *GIC) EOI(id uint32) {
	if id < 32 || id > 63 {
		return
	}
	g.active &^= 1 << (id - 32)
}
