package printer

import (
	"bytes"
)

// ESC/POS commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// Text alignment
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// ESCPOSEncoder generates ESC/POS commands for text receipts
type ESCPOSEncoder struct {
	buffer *bytes.Buffer
}

// NewESCPOSEncoder creates a new ESC/POS encoder
func NewESCPOSEncoder() *ESCPOSEncoder {
	return &ESCPOSEncoder{
		buffer: new(bytes.Buffer),
	}
}

// Initialize resets the printer to its power-on state
func (e *ESCPOSEncoder) Initialize() {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('@')
}

// Cut sends the full paper cut command
func (e *ESCPOSEncoder) Cut() {
	e.buffer.WriteByte(GS)
	e.buffer.WriteByte('V')
	e.buffer.WriteByte(0)
}

// LineFeed sends line feed
func (e *ESCPOSEncoder) LineFeed() {
	e.buffer.WriteByte(LF)
}

// Feed sends multiple line feeds
func (e *ESCPOSEncoder) Feed(lines int) {
	for i := 0; i < lines; i++ {
		e.LineFeed()
	}
}

// SetAlignment sets text alignment
func (e *ESCPOSEncoder) SetAlignment(align string) {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('a')

	switch align {
	case AlignCenter:
		e.buffer.WriteByte(1)
	case AlignRight:
		e.buffer.WriteByte(2)
	default:
		e.buffer.WriteByte(0)
	}
}

// SetTextSize sets the character magnification, 1 to 8 in each direction
func (e *ESCPOSEncoder) SetTextSize(width, height int) {
	width = clamp(width, 1, 8)
	height = clamp(height, 1, 8)

	size := byte(((width - 1) << 4) | (height - 1))

	e.buffer.WriteByte(GS)
	e.buffer.WriteByte('!')
	e.buffer.WriteByte(size)
}

// SetBold enables or disables bold text
func (e *ESCPOSEncoder) SetBold(enabled bool) {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('E')
	if enabled {
		e.buffer.WriteByte(1)
	} else {
		e.buffer.WriteByte(0)
	}
}

// WriteText writes text
func (e *ESCPOSEncoder) WriteText(text string) {
	e.buffer.WriteString(text)
}

// WriteLine writes text followed by a line feed
func (e *ESCPOSEncoder) WriteLine(text string) {
	e.WriteText(text)
	e.LineFeed()
}

// GetBytes returns the generated ESC/POS commands
func (e *ESCPOSEncoder) GetBytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer
func (e *ESCPOSEncoder) Reset() {
	e.buffer.Reset()
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
