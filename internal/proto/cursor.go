package proto

// cursor walks the semicolon-separated fields of one protocol line. All
// reads are bounds-checked; the cursor never advances past the end of the
// buffer, even on malformed input.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(line []byte) *cursor {
	// Strip the line terminator if the caller left it in.
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return &cursor{buf: line}
}

// next returns the bytes of the next field and consumes its trailing
// separator. ok is false when the cursor is exhausted.
func (c *cursor) next() (field []byte, ok bool) {
	if c.pos > len(c.buf) {
		return nil, false
	}
	start := c.pos
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == ';' {
			c.pos = i + 1
			return c.buf[start:i], true
		}
	}
	c.pos = len(c.buf) + 1
	return c.buf[start:], true
}

// remaining counts the fields left without consuming them.
func (c *cursor) remaining() int {
	if c.pos > len(c.buf) {
		return 0
	}
	n := 1
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == ';' {
			n++
		}
	}
	return n
}

// exhausted reports whether every field has been consumed.
func (c *cursor) exhausted() bool {
	return c.pos > len(c.buf)
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexVal(b byte) uint64 {
	switch {
	case b >= '0' && b <= '9':
		return uint64(b - '0')
	case b >= 'a' && b <= 'f':
		return uint64(b-'a') + 10
	default:
		return uint64(b-'A') + 10
	}
}

// parseHex parses a base-16 field without allocating. ok is false on an
// empty field, a non-hex byte, or overflow past 64 bits.
func parseHex(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) > 16 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if !isHexDigit(c) {
			return 0, false
		}
		v = v<<4 | hexVal(c)
	}
	return v, true
}

// parseDec parses a base-10 field.
func parseDec(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) > 19 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}

// validMAC checks the canonical xx:xx:xx:xx:xx:xx form.
func validMAC(b []byte) bool {
	if len(b) != 17 {
		return false
	}
	for i, c := range b {
		if i%3 == 2 {
			if c != ':' {
				return false
			}
		} else if !isHexDigit(c) {
			return false
		}
	}
	return true
}
