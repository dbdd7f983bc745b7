package rc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/airtap/ratectl/internal/station"
	"github.com/airtap/ratectl/internal/util"
)

func init() {
	Register("fixed_mrr", newFixedMRR)
}

const defaultProbeInterval = 10 * time.Second

// fixedMRR switches a station to manual rate control, installs a fixed MRR
// chain once, and keeps sounding a probe rate on an interval. It exists to
// exercise the full control task surface and as a template for real
// algorithms.
type fixedMRR struct {
	rates     []int
	counts    []int
	probeRate int
	interval  time.Duration
	logger    util.Logger
}

type fixedMRRState struct {
	sta *station.Station
}

func newFixedMRR(opts map[string]string, logger util.Logger) (station.Algorithm, error) {
	a := &fixedMRR{probeRate: -1, interval: defaultProbeInterval, logger: logger}

	rates, err := parseHexList(opts["rates"])
	if err != nil {
		return nil, fmt.Errorf("fixed_mrr: rates: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("fixed_mrr: at least one rate required")
	}
	a.rates = rates

	if raw, ok := opts["counts"]; ok {
		counts, err := parseHexList(raw)
		if err != nil {
			return nil, fmt.Errorf("fixed_mrr: counts: %w", err)
		}
		a.counts = counts
	} else {
		a.counts = make([]int, len(rates))
		for i := range a.counts {
			a.counts[i] = 1
		}
	}
	if len(a.counts) != len(a.rates) {
		return nil, fmt.Errorf("fixed_mrr: %d rates but %d counts", len(a.rates), len(a.counts))
	}

	if raw, ok := opts["probe_rate"]; ok {
		rate, err := strconv.ParseInt(raw, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("fixed_mrr: probe_rate: %w", err)
		}
		a.probeRate = int(rate)
	}
	if raw, ok := opts["probe_interval"]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("fixed_mrr: probe_interval: %w", err)
		}
		a.interval = d
	}
	return a, nil
}

func (a *fixedMRR) Configure(ctx context.Context, sta *station.Station) (any, error) {
	if err := sta.SetRcMode(true); err != nil {
		return nil, err
	}
	if err := sta.SetRates(a.rates, a.counts); err != nil {
		return nil, err
	}
	return &fixedMRRState{sta: sta}, nil
}

func (a *fixedMRR) Run(ctx context.Context, state any) error {
	st := state.(*fixedMRRState)
	if a.probeRate < 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := st.sta.SetProbeRate(a.probeRate); err != nil {
				a.logger.Warn("probe failed", "station", st.sta.MAC(), "error", err)
			}
		}
	}
}

func (a *fixedMRR) Pause(ctx context.Context, state any) error {
	st := state.(*fixedMRRState)
	a.logger.Debug("fixed_mrr paused", "station", st.sta.MAC())
	return nil
}

// Resume re-asserts manual mode and the MRR chain; the core leaves modes at
// auto after a disassociation pause.
func (a *fixedMRR) Resume(ctx context.Context, state any) error {
	st := state.(*fixedMRRState)
	if err := st.sta.SetRcMode(true); err != nil {
		return err
	}
	return st.sta.SetRates(a.rates, a.counts)
}

func parseHexList(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 16, 32)
		if err != nil {
			return nil, err
		}
		values = append(values, int(v))
	}
	return values, nil
}
