package proto

import "bytes"

// rateSentinel16 is the on-wire rate value marking an unused MRR slot.
const rateSentinel16 = 0xffff

// decodeMrrStages parses the trailing MRR stage list of a txs record. Two
// layouts exist on the wire and both are accepted:
//
//	rate,count[,txpower] per stage, stages separated by ';'
//	rate;count per stage (legacy firmwares, no per-stage power)
//
// A slot is absent when its rate carries the 16-bit sentinel, its retry
// count is zero, or the fields are empty padding. A line whose four slots
// are all absent is valid and means no rate was attempted.
func decodeMrrStages(c *cursor, ev *TxStatusEvent) error {
	switch rest := c.remaining(); rest {
	case MaxStages:
		for i := 0; i < MaxStages; i++ {
			tok, _ := c.next()
			stage, err := decodeStageToken(tok)
			if err != nil {
				return err
			}
			ev.Stages[i] = stage
		}
	case 2 * MaxStages:
		for i := 0; i < MaxStages; i++ {
			rateField, _ := c.next()
			countField, _ := c.next()
			stage, err := decodeStagePair(rateField, countField)
			if err != nil {
				return err
			}
			ev.Stages[i] = stage
		}
	default:
		return decodeErr(FieldCountMismatch, "mrr", "got %d stage fields, want %d or %d", rest, MaxStages, 2*MaxStages)
	}

	// Only the leading run of populated slots counts; everything after the
	// first absent slot is padding.
	populated := 0
	for populated < MaxStages && !ev.Stages[populated].Absent() {
		populated++
	}
	for i := populated; i < MaxStages; i++ {
		ev.Stages[i] = absentStage()
	}

	ev.Populated = populated
	ev.Credited = SentinelIndex
	if ev.Acked > 0 && populated > 0 {
		ev.Credited = populated - 1
	}
	return nil
}

func decodeStageToken(tok []byte) (MrrStage, error) {
	if len(tok) == 0 || tok[0] == ',' {
		return absentStage(), nil
	}

	var rateField, countField, txpowerField []byte
	rest := tok
	rateField, rest = splitSub(rest)
	countField, rest = splitSub(rest)
	txpowerField, rest = splitSub(rest)
	if len(rest) > 0 {
		return MrrStage{}, decodeErr(MalformedField, "mrr", "stage %q has more than three sub-fields", tok)
	}

	rate, ok := parseHex(rateField)
	if !ok {
		return MrrStage{}, decodeErr(MalformedField, "mrr_rate", "not a hex integer: %q", rateField)
	}
	if rate == rateSentinel16 {
		return absentStage(), nil
	}

	if countField == nil {
		return MrrStage{}, decodeErr(MalformedField, "mrr_count", "stage %q has no retry count", tok)
	}
	count, ok := parseHex(countField)
	if !ok {
		return MrrStage{}, decodeErr(MalformedField, "mrr_count", "not a hex integer: %q", countField)
	}
	if count == 0 {
		return absentStage(), nil
	}

	txpower := SentinelIndex
	if len(txpowerField) > 0 {
		p, ok := parseHex(txpowerField)
		if !ok {
			return MrrStage{}, decodeErr(MalformedField, "mrr_txpower", "not a hex integer: %q", txpowerField)
		}
		txpower = int(p)
	}

	return MrrStage{Rate: int(rate), Count: uint32(count), TxPower: txpower}, nil
}

func decodeStagePair(rateField, countField []byte) (MrrStage, error) {
	if len(rateField) == 0 {
		return absentStage(), nil
	}
	rate, ok := parseHex(rateField)
	if !ok {
		return MrrStage{}, decodeErr(MalformedField, "mrr_rate", "not a hex integer: %q", rateField)
	}
	count, ok := parseHex(countField)
	if !ok {
		return MrrStage{}, decodeErr(MalformedField, "mrr_count", "not a hex integer: %q", countField)
	}
	if rate == rateSentinel16 || count == 0 {
		return absentStage(), nil
	}
	return MrrStage{Rate: int(rate), Count: uint32(count), TxPower: SentinelIndex}, nil
}

// splitSub peels the next ','-separated sub-field off a stage token. It
// returns a nil sub when the token is exhausted, distinguishing "missing"
// from "empty".
func splitSub(b []byte) (sub, rest []byte) {
	if b == nil {
		return nil, nil
	}
	if i := bytes.IndexByte(b, ','); i >= 0 {
		return b[:i], b[i+1:]
	}
	return b, nil
}

func absentStage() MrrStage {
	return MrrStage{Rate: SentinelIndex, Count: 0, TxPower: SentinelIndex}
}
