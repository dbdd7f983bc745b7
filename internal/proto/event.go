package proto

// MaxStages is the number of MRR slots carried by a transmission status
// record. Slots beyond the last attempted stage are absent.
const MaxStages = 4

// SentinelIndex marks an absent rate or an unset transmit power level. It is
// the wire encoding for "no stage attempted", not an invalid index.
const SentinelIndex = -1

// Header carries the fields common to every record: the radio identifier and
// the hardware timestamp normalized to nanoseconds.
type Header struct {
	Radio     string
	Timestamp uint64
}

func (h Header) EventHeader() Header { return h }

// Event is any decoded protocol record.
type Event interface {
	EventHeader() Header
}

// MrrStage is one slot of the multi-rate retry chain.
type MrrStage struct {
	Rate    int // SentinelIndex when the stage is absent
	Count   uint32
	TxPower int // SentinelIndex when the device chose the power
}

// Absent reports whether this slot carried no transmission attempt.
func (s MrrStage) Absent() bool { return s.Rate == SentinelIndex }

// TxStatusEvent is a decoded `txs` record: the outcome of one logical
// transmission to a station, possibly spanning several MRR stages.
type TxStatusEvent struct {
	Header
	MAC       string
	Frames    uint32
	Acked     uint32
	Probe     bool
	Stages    [MaxStages]MrrStage
	Populated int
	// Credited is the index of the stage the acknowledged frames are
	// attributed to, or SentinelIndex when no frames were acknowledged.
	Credited int
}

// Attempts derives the attempt count for stage i: frames times the stage's
// retry count.
func (e *TxStatusEvent) Attempts(i int) uint64 {
	return uint64(e.Frames) * uint64(e.Stages[i].Count)
}

// Successes derives the success count for stage i. Only the credited stage
// carries the acknowledged frames; every other stage was a failed attempt.
func (e *TxStatusEvent) Successes(i int) uint64 {
	if i == e.Credited && e.Credited != SentinelIndex {
		return uint64(e.Acked)
	}
	return 0
}

// RcStatsEvent is a decoded `stats` (a.k.a. `rcs`) record: the kernel's own
// per-rate statistics for a station. It is routed and exported but never
// merged into the controller's rate table.
type RcStatsEvent struct {
	Header
	MAC          string
	Rate         int
	AvgProb      uint64
	AvgTput      uint64
	CurSuccess   uint64
	CurAttempts  uint64
	HistSuccess  uint64
	HistAttempts uint64
}

// StationAction distinguishes the `sta` record subtypes.
type StationAction int

const (
	StationAdd StationAction = iota
	StationUpdate
	StationRemove
)

func (a StationAction) String() string {
	switch a {
	case StationAdd:
		return "add"
	case StationUpdate:
		return "update"
	case StationRemove:
		return "remove"
	}
	return "unknown"
}

// StationEvent is a decoded `sta` record announcing an association change.
// `dump` lines (replays of already-associated stations) decode as StationAdd.
type StationEvent struct {
	Header
	Action StationAction
	MAC    string
}

// ModeField distinguishes which control axis a mode acknowledgement is for.
type ModeField int

const (
	ModeRate ModeField = iota
	ModePower
)

// ModeAckEvent is the device's acknowledgement of a rate or power control
// mode switch for a station.
type ModeAckEvent struct {
	Header
	MAC    string
	Field  ModeField
	Manual bool
}
