package rc

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/airtap/ratectl/internal/proto"
	"github.com/airtap/ratectl/internal/station"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu   sync.Mutex
	cmds []string
}

func (s *recordingSink) SendCommand(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSink) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func TestRegistryKnown(t *testing.T) {
	if !Known(KernelAuto) {
		t.Fatalf("kernel_auto not known")
	}
	if !Known("fixed_mrr") {
		t.Fatalf("fixed_mrr not known")
	}
	if Known("minstrel_deluxe") {
		t.Fatalf("unregistered algorithm reported known")
	}
	if _, err := New("minstrel_deluxe", nil, testLogger()); err == nil {
		t.Fatalf("New accepted unregistered algorithm")
	}
}

func TestFixedMRROptions(t *testing.T) {
	if _, err := New("fixed_mrr", map[string]string{}, testLogger()); err == nil {
		t.Fatalf("fixed_mrr without rates accepted")
	}
	if _, err := New("fixed_mrr", map[string]string{"rates": "d7,zz"}, testLogger()); err == nil {
		t.Fatalf("non-hex rate accepted")
	}
	if _, err := New("fixed_mrr", map[string]string{"rates": "d7,c5", "counts": "1"}, testLogger()); err == nil {
		t.Fatalf("mismatched counts accepted")
	}
	if _, err := New("fixed_mrr", map[string]string{"rates": "d7", "probe_interval": "soon"}, testLogger()); err == nil {
		t.Fatalf("bad probe_interval accepted")
	}
	if _, err := New("fixed_mrr", map[string]string{"rates": "d7,c5", "counts": "4,2", "probe_rate": "d0"}, testLogger()); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestFixedMRRConfigureAndResume(t *testing.T) {
	alg, err := New("fixed_mrr", map[string]string{"rates": "d7,c5", "counts": "4,2"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sink := &recordingSink{}
	sta := station.New(station.Config{
		MAC:         "cc:32:e5:9d:ab:58",
		Radio:       "phy0",
		AP:          "ap0",
		NumRates:    1024,
		NumTxPowers: 64,
	}, sink, testLogger())

	state, err := alg.Configure(context.Background(), sta)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	want := []string{
		"phy0;manual",
		"phy0;rates;cc:32:e5:9d:ab:58;d7,c5;4,2",
	}
	got := sink.commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// After a disassociation pause the core forces auto; Resume must assert
	// manual mode and the chain again.
	pr, ok := alg.(station.PauseResumer)
	if !ok {
		t.Fatalf("fixed_mrr lacks pause/resume")
	}
	if err := pr.Pause(context.Background(), state); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	sta.ApplyModeAck(&proto.ModeAckEvent{MAC: sta.MAC(), Field: proto.ModeRate, Manual: false})

	if err := pr.Resume(context.Background(), state); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got = sink.commands()
	if len(got) != 4 {
		t.Fatalf("commands after resume = %v, want 4 entries", got)
	}
	if got[2] != "phy0;manual" || got[3] != "phy0;rates;cc:32:e5:9d:ab:58;d7,c5;4,2" {
		t.Fatalf("resume commands = %v", got[2:])
	}
}
