package board

import (
	"image/color"

	"verso/hal"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// termSink renders UART output into the framebuffer through a VT100-ish
// terminal. Bytes arrive from the machine loop only; flush happens once per
// frame.
type termSink struct {
	fb    hal.Framebuffer
	d     *fbDisplay
	t     *tinyterm.Terminal
	dirty bool
}

func newTermSink(fb hal.Framebuffer) *termSink {
	s := &termSink{fb: fb, d: newFBDisplay(fb)}
	s.t = tinyterm.NewTerminal(s.d)
	s.t.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: 10,
		FontOffset: 7,
	})
	fb.ClearRGB(0, 0, 0)
	_ = fb.Present()
	return s
}

func (s *termSink) writeByte(b byte) {
	if b == '\n' {
		_, _ = s.t.Write([]byte{'\r', '\n'})
	} else {
		_, _ = s.t.Write([]byte{b})
	}
	s.dirty = true
}

func (s *termSink) flush() {
	if !s.dirty {
		return
	}
	_ = s.t.Display()
	s.dirty = false
}

// fbDisplay adapts hal.Framebuffer to the tinyterm Displayer contract.
// All drawing funnels through buf/stamp/fillRect so the clipping and
// stride handling live in one place.
type fbDisplay struct {
	fb hal.Framebuffer
}

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	return &fbDisplay{fb: fb}
}

// buf returns the pixel buffer, or nil when the framebuffer is missing or
// not RGB565.
func (d *fbDisplay) buf() []byte {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	return d.fb.Buffer()
}

// stamp writes one RGB565 pixel at a byte offset, bounds-checked.
func stamp(buf []byte, off int, pixel uint16) {
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	buf := d.buf()
	if buf == nil {
		return
	}
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}
	stamp(buf, iy*d.fb.StrideBytes()+ix*2, rgb565From888(c.R, c.G, c.B))
}

func (d *fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// fillRect paints the clipped rectangle [x0,x1)x[y0,y1).
func (d *fbDisplay) fillRect(x0, y0, x1, y1 int, c color.RGBA) error {
	buf := d.buf()
	if buf == nil {
		return nil
	}
	w, h := d.fb.Width(), d.fb.Height()
	x0, x1 = clamp(x0, 0, w), clamp(x1, 0, w)
	y0, y1 = clamp(y0, 0, h), clamp(y1, 0, h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := rgb565From888(c.R, c.G, c.B)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := py * stride
		for px := x0; px < x1; px++ {
			stamp(buf, row+px*2, pixel)
		}
	}
	return nil
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	return d.fillRect(int(x), int(y), int(x)+int(width), int(y)+int(height), c)
}

// ScrollUp shifts content up by a band of pixel rows and repaints the
// exposed bottom band; tinyterm prefers it over hardware scrolling when
// available.
func (d *fbDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	buf := d.buf()
	if buf == nil || lines <= 0 {
		return nil
	}

	w, h := d.fb.Width(), d.fb.Height()
	n := int(lines)
	if n >= h {
		return d.fillRect(0, 0, w, h, bg)
	}

	stride := d.fb.StrideBytes()
	src := n * stride
	if src > len(buf) {
		return d.fillRect(0, 0, w, h, bg)
	}
	keep := (h - n) * stride
	if src+keep > len(buf) {
		keep = len(buf) - src
	}
	if keep > 0 {
		copy(buf[:keep], buf[src:src+keep])
	}
	return d.fillRect(0, h-n, w, h, bg)
}

func (d *fbDisplay) SetScroll(line int16) {}

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error { return nil }

func rgb565From888(r, g, b uint8) uint16 {
	return (uint16(r>>3)&0x1F)<<11 | (uint16(g>>2)&0x3F)<<5 | uint16(b>>3)&0x1F
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
