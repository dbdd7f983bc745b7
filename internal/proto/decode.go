package proto

import (
	"fmt"
	"math"
)

// MaxRadioIDLen bounds the radio identifier field.
const MaxRadioIDLen = 16

const nsPerSec = 1_000_000_000

// TimestampFormat selects how a connection encodes record timestamps. Two
// historical device firmwares exist: one writes a single 16-hex-digit
// nanosecond field, the other writes two decimal fields (seconds;nanoseconds).
type TimestampFormat int

const (
	TimestampHexNs TimestampFormat = iota
	TimestampSecNsec
)

// ParseTimestampFormat maps the config spelling to a TimestampFormat.
func ParseTimestampFormat(s string) (TimestampFormat, error) {
	switch s {
	case "", "hex_ns":
		return TimestampHexNs, nil
	case "sec_nsec":
		return TimestampSecNsec, nil
	}
	return 0, fmt.Errorf("unknown timestamp format %q (want hex_ns or sec_nsec)", s)
}

// Decoder turns one newline-delimited protocol record into a typed event.
// It is stateless apart from the timestamp format and safe for concurrent
// use, though in practice one decoder serves one connection.
type Decoder struct {
	tsFormat TimestampFormat
}

func NewDecoder(format TimestampFormat) *Decoder {
	return &Decoder{tsFormat: format}
}

// Decode parses a single line. It returns exactly one typed event or a
// *DecodeError; it never reads past the supplied buffer.
func (d *Decoder) Decode(line []byte) (Event, error) {
	c := newCursor(line)

	radio, ok := c.next()
	if !ok || len(radio) == 0 || len(radio) > MaxRadioIDLen {
		return nil, decodeErr(MalformedField, "phy", "radio identifier missing or longer than %d bytes", MaxRadioIDLen)
	}

	ts, err := d.decodeTimestamp(c)
	if err != nil {
		return nil, err
	}

	typ, ok := c.next()
	if !ok || len(typ) == 0 {
		return nil, decodeErr(MalformedField, "type", "record type missing")
	}

	hdr := Header{Radio: string(radio), Timestamp: ts}

	switch string(typ) {
	case "txs":
		return decodeTxStatus(c, hdr)
	case "stats", "rcs":
		return decodeRcStats(c, hdr)
	case "sta":
		return decodeStation(c, hdr)
	case "rc_mode":
		return decodeModeAck(c, hdr, ModeRate)
	case "tpc_mode":
		return decodeModeAck(c, hdr, ModePower)
	}
	return nil, decodeErr(UnexpectedRecordType, "type", "unrecognized record type %q", typ)
}

func (d *Decoder) decodeTimestamp(c *cursor) (uint64, error) {
	switch d.tsFormat {
	case TimestampSecNsec:
		secField, ok := c.next()
		if !ok {
			return 0, decodeErr(MalformedTimestamp, "sec", "timestamp seconds missing")
		}
		sec, ok := parseDec(secField)
		if !ok {
			return 0, decodeErr(MalformedTimestamp, "sec", "not a decimal integer: %q", secField)
		}
		nsecField, ok := c.next()
		if !ok {
			return 0, decodeErr(MalformedTimestamp, "nsec", "timestamp nanoseconds missing")
		}
		nsec, ok := parseDec(nsecField)
		if !ok || nsec >= nsPerSec {
			return 0, decodeErr(MalformedTimestamp, "nsec", "not a sub-second nanosecond count: %q", nsecField)
		}
		return sec*nsPerSec + nsec, nil
	default:
		field, ok := c.next()
		if !ok {
			return 0, decodeErr(MalformedTimestamp, "timestamp", "timestamp missing")
		}
		if len(field) != 16 {
			return 0, decodeErr(MalformedTimestamp, "timestamp", "want 16 hex digits, got %d bytes", len(field))
		}
		ts, ok := parseHex(field)
		if !ok {
			return 0, decodeErr(MalformedTimestamp, "timestamp", "not a hex integer: %q", field)
		}
		return ts, nil
	}
}

func decodeTxStatus(c *cursor, hdr Header) (Event, error) {
	// Guard against truncated or extended lines up front: the four header
	// fields plus one of the two known MRR layouts.
	switch rest := c.remaining(); rest {
	case 4 + MaxStages, 4 + 2*MaxStages:
	default:
		return nil, decodeErr(FieldCountMismatch, "", "txs record with %d trailing fields", rest)
	}

	mac, ok := c.next()
	if !ok || !validMAC(mac) {
		return nil, decodeErr(MalformedAddress, "mac", "want canonical xx:xx:xx:xx:xx:xx, got %q", mac)
	}

	frames, err := hexField(c, "num_frames")
	if err != nil {
		return nil, err
	}
	acked, err := hexField(c, "num_acked")
	if err != nil {
		return nil, err
	}
	if frames > math.MaxUint32 || acked > math.MaxUint32 {
		return nil, decodeErr(MalformedField, "num_frames", "frame counter out of range")
	}

	probeField, ok := c.next()
	if !ok || len(probeField) != 1 || (probeField[0] != '0' && probeField[0] != '1') {
		return nil, decodeErr(MalformedField, "probe", "want 0 or 1, got %q", probeField)
	}

	ev := &TxStatusEvent{
		Header: hdr,
		MAC:    string(mac),
		Frames: uint32(frames),
		Acked:  uint32(acked),
		Probe:  probeField[0] == '1',
	}
	if err := decodeMrrStages(c, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeRcStats(c *cursor, hdr Header) (Event, error) {
	if rest := c.remaining(); rest != 8 {
		return nil, decodeErr(FieldCountMismatch, "", "stats record with %d trailing fields", rest)
	}

	mac, ok := c.next()
	if !ok || !validMAC(mac) {
		return nil, decodeErr(MalformedAddress, "mac", "want canonical xx:xx:xx:xx:xx:xx, got %q", mac)
	}

	ev := &RcStatsEvent{Header: hdr, MAC: string(mac)}
	fields := []struct {
		name string
		dst  *uint64
	}{
		{"avg_prob", &ev.AvgProb},
		{"avg_tp", &ev.AvgTput},
		{"cur_success", &ev.CurSuccess},
		{"cur_attempts", &ev.CurAttempts},
		{"hist_success", &ev.HistSuccess},
		{"hist_attempts", &ev.HistAttempts},
	}

	rate, err := hexField(c, "rate")
	if err != nil {
		return nil, err
	}
	ev.Rate = int(rate)

	for _, f := range fields {
		v, err := hexField(c, f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return ev, nil
}

func decodeStation(c *cursor, hdr Header) (Event, error) {
	actionField, ok := c.next()
	if !ok {
		return nil, decodeErr(MalformedField, "action", "sta record without action")
	}

	var action StationAction
	switch string(actionField) {
	case "add", "dump":
		action = StationAdd
	case "update":
		action = StationUpdate
	case "remove":
		action = StationRemove
	default:
		return nil, decodeErr(MalformedField, "action", "unknown sta action %q", actionField)
	}

	mac, ok := c.next()
	if !ok || !validMAC(mac) {
		return nil, decodeErr(MalformedAddress, "mac", "want canonical xx:xx:xx:xx:xx:xx, got %q", mac)
	}

	// sta lines carry a firmware-dependent capability tail; it is not
	// interpreted here.
	for !c.exhausted() {
		c.next()
	}

	return &StationEvent{Header: hdr, Action: action, MAC: string(mac)}, nil
}

func decodeModeAck(c *cursor, hdr Header, field ModeField) (Event, error) {
	if rest := c.remaining(); rest != 2 {
		return nil, decodeErr(FieldCountMismatch, "", "mode record with %d trailing fields", rest)
	}

	mac, ok := c.next()
	if !ok || !validMAC(mac) {
		return nil, decodeErr(MalformedAddress, "mac", "want canonical xx:xx:xx:xx:xx:xx, got %q", mac)
	}

	modeField, _ := c.next()
	var manual bool
	switch string(modeField) {
	case "manual":
		manual = true
	case "auto":
		manual = false
	default:
		return nil, decodeErr(MalformedField, "mode", "want auto or manual, got %q", modeField)
	}

	return &ModeAckEvent{Header: hdr, MAC: string(mac), Field: field, Manual: manual}, nil
}

func hexField(c *cursor, name string) (uint64, error) {
	field, ok := c.next()
	if !ok {
		return 0, decodeErr(MalformedField, name, "field missing")
	}
	v, ok := parseHex(field)
	if !ok {
		return 0, decodeErr(MalformedField, name, "not a hex integer: %q", field)
	}
	return v, nil
}
