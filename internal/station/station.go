// Package station holds per-station control state: identity, control modes,
// association status, the outcome statistics table, and the rate control
// task lifecycle.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/airtap/ratectl/internal/proto"
	"github.com/airtap/ratectl/internal/stats"
	"github.com/airtap/ratectl/internal/util"
)

// Mode is a control axis setting: kernel-driven (auto) or user-driven
// (manual).
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// ErrNotManual is returned when a rate/power install is attempted while the
// corresponding control axis is still kernel-driven.
var ErrNotManual = errors.New("station is not in manual mode")

// CommandSink delivers one command line to the device hosting the station.
// Implemented by the transport connection; commands issued for a single
// station are serialized in issuance order.
type CommandSink interface {
	SendCommand(cmd string) error
}

// Config carries the construction parameters for a Station.
type Config struct {
	MAC             string
	Radio           string
	AP              string
	NumRates        int
	NumTxPowers     int
	PauseOnDisassoc bool
}

// Station is the per-station aggregate. The dispatcher goroutine mutates it
// with decoded events; the station's own algorithm goroutine drives modes
// and outbound commands. No other goroutine touches it.
type Station struct {
	mu sync.Mutex

	mac   string
	radio string
	ap    string

	rcMode          Mode
	tpcMode         Mode
	associated      bool
	pauseOnDisassoc bool
	lastSeen        uint64

	table  *stats.Table
	task   *Task
	sink   CommandSink
	logger util.Logger
}

func New(cfg Config, sink CommandSink, logger util.Logger) *Station {
	return &Station{
		mac:             util.CanonicalMAC(cfg.MAC),
		radio:           cfg.Radio,
		ap:              cfg.AP,
		pauseOnDisassoc: cfg.PauseOnDisassoc,
		associated:      true,
		table:           stats.NewTable(cfg.NumRates, cfg.NumTxPowers),
		sink:            sink,
		logger:          logger,
	}
}

func (s *Station) MAC() string   { return s.mac }
func (s *Station) Radio() string { return s.radio }
func (s *Station) AP() string    { return s.ap }

func (s *Station) String() string { return "sta[" + s.mac + "]" }

func (s *Station) RcMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rcMode
}

func (s *Station) TpcMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tpcMode
}

func (s *Station) Associated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.associated
}

func (s *Station) LastSeen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Table exposes the statistics grid. Its accessors are safe to call
// concurrently with event application.
func (s *Station) Table() *stats.Table { return s.table }

// Task returns the control task, or nil while no algorithm is attached.
func (s *Station) Task() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// ApplyTxStatus folds one transmission status event into the statistics
// table.
func (s *Station) ApplyTxStatus(ev *proto.TxStatusEvent) {
	samples := make([]stats.Sample, 0, ev.Populated)
	for i := 0; i < ev.Populated; i++ {
		samples = append(samples, stats.Sample{
			Rate:      ev.Stages[i].Rate,
			TxPower:   ev.Stages[i].TxPower,
			Attempts:  ev.Attempts(i),
			Successes: ev.Successes(i),
		})
	}
	s.table.Update(ev.Timestamp, samples)

	s.mu.Lock()
	if ev.Timestamp > s.lastSeen {
		s.lastSeen = ev.Timestamp
	}
	s.mu.Unlock()
}

// ApplyRcStats records that the station was seen; kernel statistics are
// exported downstream but never merged into the table.
func (s *Station) ApplyRcStats(ev *proto.RcStatsEvent) {
	s.mu.Lock()
	if ev.Timestamp > s.lastSeen {
		s.lastSeen = ev.Timestamp
	}
	s.mu.Unlock()
}

// ApplyModeAck updates the station's view of a control axis after the
// device acknowledges a mode switch.
func (s *Station) ApplyModeAck(ev *proto.ModeAckEvent) {
	mode := ModeAuto
	if ev.Manual {
		mode = ModeManual
	}
	s.mu.Lock()
	if ev.Field == proto.ModeRate {
		s.rcMode = mode
	} else {
		s.tpcMode = mode
	}
	s.mu.Unlock()
}

// SetRcMode switches rate control between kernel and user control,
// commanding the device only on an actual change.
func (s *Station) SetRcMode(manual bool) error {
	return s.setMode(manual, true)
}

// SetTpcMode is the transmit-power analog of SetRcMode.
func (s *Station) SetTpcMode(manual bool) error {
	return s.setMode(manual, false)
}

func (s *Station) setMode(manual, rate bool) error {
	mode := ModeAuto
	if manual {
		mode = ModeManual
	}

	s.mu.Lock()
	cur := &s.rcMode
	if !rate {
		cur = &s.tpcMode
	}
	if *cur == mode {
		s.mu.Unlock()
		return nil
	}
	*cur = mode
	radio := s.radio
	s.mu.Unlock()

	cmd := proto.RateModeCommand(radio, manual)
	axis := "rc"
	if !rate {
		cmd = proto.PowerModeCommand(radio, manual)
		axis = "tpc"
	}
	if err := s.sink.SendCommand(cmd); err != nil {
		return err
	}
	s.logger.Debug("mode switched", "station", s.mac, "axis", axis, "mode", mode.String())
	return nil
}

// SetRates installs an MRR chain. Requires manual rate control mode.
func (s *Station) SetRates(rates, counts []int) error {
	if len(rates) != len(counts) {
		return fmt.Errorf("rate and count lists differ in length: %d vs %d", len(rates), len(counts))
	}
	if s.RcMode() != ModeManual {
		return ErrNotManual
	}
	return s.sink.SendCommand(proto.RatesCommand(s.radio, s.mac, rates, counts))
}

// SetPower installs a transmit-power table. Requires manual power control
// mode.
func (s *Station) SetPower(levels []int) error {
	if s.TpcMode() != ModeManual {
		return ErrNotManual
	}
	return s.sink.SendCommand(proto.PowerCommand(s.radio, s.mac, levels))
}

// SetProbeRate requests a sounding transmission at the given rate. Requires
// manual rate control mode.
func (s *Station) SetProbeRate(rate int) error {
	if s.RcMode() != ModeManual {
		return ErrNotManual
	}
	return s.sink.SendCommand(proto.ProbeCommand(s.radio, s.mac, rate))
}

// ResetStats zeroes both the local table and the kernel-side counters.
func (s *Station) ResetStats() error {
	nRates, nTxPowers := s.table.Dims()
	s.table.Reset(nRates, nTxPowers)
	return s.sink.SendCommand(proto.ResetStatsCommand(s.radio))
}

// AttachAlgorithm puts the station under the given rate control algorithm.
// Any previously attached task is stopped first. On a Configure failure the
// task ends up stopped and the error is surfaced; the station's modes keep
// their pre-attach values since no manual assertion has happened yet.
func (s *Station) AttachAlgorithm(ctx context.Context, alg Algorithm) error {
	s.mu.Lock()
	old := s.task
	task := newTask(s, alg, s.logger)
	s.task = task
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return task.Start(ctx)
}

// StopRateControl terminates the attached task, if any.
func (s *Station) StopRateControl() {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// Associate marks the station as present. A task paused by an earlier
// disassociation is resumed; its resume hook is responsible for
// re-asserting manual modes.
func (s *Station) Associate(ctx context.Context) error {
	s.mu.Lock()
	s.associated = true
	task := s.task
	s.mu.Unlock()

	if task != nil && task.State() == TaskPaused {
		return task.Resume(ctx)
	}
	return nil
}

// Disassociate marks the station as gone. With pause_on_disassoc the task is
// paused and both control axes fall back to auto — manual control cannot be
// asserted on a station that is not present. Otherwise the task stops for
// good. A task still configuring is stopped either way.
func (s *Station) Disassociate(ctx context.Context) {
	s.mu.Lock()
	s.associated = false
	task := s.task
	pause := s.pauseOnDisassoc
	s.mu.Unlock()

	if task == nil {
		return
	}

	if !pause || task.State() == TaskConfiguring {
		task.Stop()
		return
	}

	if err := task.Pause(ctx); err != nil {
		s.logger.Error("pause on disassociation failed", "station", s.mac, "error", err)
	}

	// The device already dropped its per-station state, so only the local
	// flags are forced; no mode command is sent to an absent peer.
	s.mu.Lock()
	s.rcMode = ModeAuto
	s.tpcMode = ModeAuto
	s.mu.Unlock()
}
