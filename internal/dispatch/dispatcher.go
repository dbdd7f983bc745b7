// Package dispatch routes decoded telemetry to per-station state.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/airtap/ratectl/internal/export"
	"github.com/airtap/ratectl/internal/proto"
	"github.com/airtap/ratectl/internal/station"
	"github.com/airtap/ratectl/internal/util"
)

// Routing failures. Both are recoverable: the event is dropped (or the
// station implicitly created, per policy) and the line stream continues.
var (
	ErrUnknownStation     = errors.New("event for unknown station")
	ErrUnknownAccessPoint = errors.New("line from unknown access point")
)

// Tap observes every successfully decoded event after routing. Taps must not
// block; the dispatch path is synchronous per line.
type Tap interface {
	HandleEvent(ap string, ev proto.Event)
}

// RawTap observes every raw line before decoding, e.g. for trace capture.
type RawTap func(ap string, line []byte)

type link struct {
	decoder  *proto.Decoder
	registry *Registry
}

// Dispatcher decodes lines arriving on registered access point links and
// applies the resulting events to the owning station. Lines from one
// connection are handled synchronously, which preserves per-station event
// order.
type Dispatcher struct {
	ctx     context.Context
	links   map[string]*link
	taps    []Tap
	rawTaps []RawTap
	metrics *export.Metrics
	logger  util.Logger

	// createOnFirstSight controls the unknown-station policy: implicit
	// creation versus dropping the event.
	createOnFirstSight bool

	// onStationNew runs after first-sight creation or an explicit add of a
	// previously unseen station; the runtime uses it to attach the
	// configured algorithm.
	onStationNew func(ap string, sta *station.Station)
}

type Options struct {
	CreateOnFirstSight bool
	OnStationNew       func(ap string, sta *station.Station)
	Taps               []Tap
	RawTaps            []RawTap
}

func NewDispatcher(ctx context.Context, metrics *export.Metrics, logger util.Logger, opts Options) *Dispatcher {
	return &Dispatcher{
		ctx:                ctx,
		links:              make(map[string]*link),
		taps:               opts.Taps,
		rawTaps:            opts.RawTaps,
		metrics:            metrics,
		logger:             logger,
		createOnFirstSight: opts.CreateOnFirstSight,
		onStationNew:       opts.OnStationNew,
	}
}

// RegisterLink announces an access point connection and the timestamp
// format its firmware speaks. Called during runtime assembly, before any
// line arrives.
func (d *Dispatcher) RegisterLink(ap string, format proto.TimestampFormat, registry *Registry) {
	d.links[ap] = &link{decoder: proto.NewDecoder(format), registry: registry}
}

// Registry returns the station registry of a registered link.
func (d *Dispatcher) Registry(ap string) *Registry {
	if l, ok := d.links[ap]; ok {
		return l.registry
	}
	return nil
}

// HandleLine decodes one telemetry line from the named access point and
// routes the event. Decode and routing failures are returned for
// accounting but never affect other stations or the line stream.
func (d *Dispatcher) HandleLine(ap string, line []byte) error {
	for _, tap := range d.rawTaps {
		tap(ap, line)
	}

	l, ok := d.links[ap]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAccessPoint, ap)
	}
	d.metrics.Lines.WithLabelValues(ap).Inc()

	// API header lines announce device capabilities during the handshake;
	// they are not station telemetry.
	if len(line) == 0 || line[0] == '*' {
		return nil
	}
	// Radio announcements (`phy;0;add`) carry no station either.
	if isRadioAdd(line) {
		return nil
	}

	ev, err := l.decoder.Decode(line)
	if err != nil {
		var derr *proto.DecodeError
		if errors.As(err, &derr) {
			d.metrics.DecodeErrors.WithLabelValues(ap, derr.Kind.String()).Inc()
		}
		d.logger.Debug("line rejected", "ap", ap, "error", err)
		return err
	}

	if err := d.route(ap, l, ev); err != nil {
		d.logger.Debug("event dropped", "ap", ap, "error", err)
		return err
	}

	for _, tap := range d.taps {
		tap.HandleEvent(ap, ev)
	}
	return nil
}

func (d *Dispatcher) route(ap string, l *link, ev proto.Event) error {
	switch e := ev.(type) {
	case *proto.TxStatusEvent:
		d.metrics.Events.WithLabelValues(ap, "txs").Inc()
		sta, err := d.lookup(ap, l, e.Radio, e.MAC)
		if err != nil {
			return err
		}
		sta.ApplyTxStatus(e)

	case *proto.RcStatsEvent:
		d.metrics.Events.WithLabelValues(ap, "stats").Inc()
		sta, err := d.lookup(ap, l, e.Radio, e.MAC)
		if err != nil {
			return err
		}
		sta.ApplyRcStats(e)

	case *proto.StationEvent:
		d.metrics.Events.WithLabelValues(ap, "sta").Inc()
		switch e.Action {
		case proto.StationAdd, proto.StationUpdate:
			sta, created := l.registry.GetOrCreate(e.Radio, e.MAC)
			if created {
				d.metrics.Stations.WithLabelValues(ap).Set(float64(l.registry.Len()))
				if d.onStationNew != nil {
					d.onStationNew(ap, sta)
				}
			}
			if err := sta.Associate(d.ctx); err != nil {
				d.logger.Error("resume after reassociation failed", "ap", ap, "station", sta.MAC(), "error", err)
			}
		case proto.StationRemove:
			sta := l.registry.Get(e.MAC)
			if sta == nil {
				return fmt.Errorf("%w: %s", ErrUnknownStation, e.MAC)
			}
			sta.Disassociate(d.ctx)
		}

	case *proto.ModeAckEvent:
		d.metrics.Events.WithLabelValues(ap, "mode").Inc()
		sta := l.registry.Get(e.MAC)
		if sta == nil {
			return fmt.Errorf("%w: %s", ErrUnknownStation, e.MAC)
		}
		sta.ApplyModeAck(e)
	}
	return nil
}

func (d *Dispatcher) lookup(ap string, l *link, radio, mac string) (*station.Station, error) {
	if !d.createOnFirstSight {
		if sta := l.registry.Get(mac); sta != nil {
			return sta, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, mac)
	}

	sta, created := l.registry.GetOrCreate(radio, mac)
	if created {
		d.metrics.Stations.WithLabelValues(ap).Set(float64(l.registry.Len()))
		if d.onStationNew != nil {
			d.onStationNew(ap, sta)
		}
	}
	return sta, nil
}

// isRadioAdd matches the `phy;0;add` announcement emitted once per radio.
func isRadioAdd(line []byte) bool {
	i := bytes.IndexByte(line, ';')
	if i < 0 {
		return false
	}
	rest := bytes.TrimRight(line[i+1:], "\r\n")
	return bytes.Equal(rest, []byte("0;add"))
}
