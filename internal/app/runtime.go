// Package app assembles the controller from its parts and supervises the
// process lifecycle.
package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/airtap/ratectl/internal/config"
	"github.com/airtap/ratectl/internal/dispatch"
	"github.com/airtap/ratectl/internal/export"
	"github.com/airtap/ratectl/internal/probe"
	"github.com/airtap/ratectl/internal/proto"
	"github.com/airtap/ratectl/internal/rc"
	"github.com/airtap/ratectl/internal/station"
	"github.com/airtap/ratectl/internal/trace"
	"github.com/airtap/ratectl/internal/transport"
	"github.com/airtap/ratectl/internal/util"
)

type Runtime struct {
	cfg        config.Config
	ctx        context.Context
	cancel     context.CancelFunc
	logger     util.Logger
	metrics    *export.Metrics
	hub        *export.EventHub
	recorder   *trace.Recorder
	exporter   *export.Server
	dispatcher *dispatch.Dispatcher
	conns      []*transport.Conn
	wg         sync.WaitGroup
}

// countingSink wraps a transport connection so every command issued for a
// station is accounted per access point.
type countingSink struct {
	conn    *transport.Conn
	metrics *export.Metrics
}

func (s *countingSink) SendCommand(cmd string) error {
	if err := s.conn.SendCommand(cmd); err != nil {
		return err
	}
	s.metrics.Commands.WithLabelValues(s.conn.AP()).Inc()
	return nil
}

func NewRuntime(cfg config.Config, logger util.Logger) (*Runtime, error) {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := export.NewMetrics()
	hub := export.NewEventHub(ctx.Done())

	rt := &Runtime{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		hub:     hub,
	}

	var taps []dispatch.Tap
	taps = append(taps, hub)

	if cfg.Trace.Enabled {
		recorder, err := trace.New(cfg.Trace.Path, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		rt.recorder = recorder
		taps = append(taps, recorder)
	}

	rt.dispatcher = dispatch.NewDispatcher(ctx, metrics, logger, dispatch.Options{
		CreateOnFirstSight: true,
		OnStationNew:       rt.attachRateControl,
		Taps:               taps,
	})

	for _, apCfg := range cfg.AccessPoints {
		rt.buildAccessPoint(apCfg)
	}

	if cfg.Export.IsEnabled() {
		rt.exporter = export.NewServer(export.Config{
			BindAddr: cfg.Export.BindAddr,
			BindPort: cfg.Export.BindPort,
		}, hub, metrics, rt.snapshotStations, logger)
	}

	return rt, nil
}

func (r *Runtime) buildAccessPoint(apCfg config.AccessPointConfig) {
	conn := transport.NewConn(transport.Config{
		AP:               apCfg.Name,
		Host:             apCfg.Host,
		Port:             apCfg.Port,
		ReconnectTimeout: apCfg.ReconnectTimeout.Duration(),
	}, r.logger)
	sink := &countingSink{conn: conn, metrics: r.metrics}

	registry := dispatch.NewRegistry(func(radio, mac string) *station.Station {
		return station.New(station.Config{
			MAC:             mac,
			Radio:           radio,
			AP:              apCfg.Name,
			NumRates:        apCfg.NumRates,
			NumTxPowers:     apCfg.NumTxPowers,
			PauseOnDisassoc: apCfg.PausesOnDisassoc(),
		}, sink, r.logger)
	})

	format, _ := proto.ParseTimestampFormat(apCfg.TimestampFormat)
	r.dispatcher.RegisterLink(apCfg.Name, format, registry)

	radios := apCfg.Radios
	conn.OnConnect(func() {
		r.metrics.APConnected.WithLabelValues(apCfg.Name).Set(1)
		for _, radio := range radios {
			if err := sink.SendCommand(proto.StartCommand(radio)); err != nil {
				r.logger.Error("telemetry start failed", "ap", apCfg.Name, "radio", radio, "error", err)
			}
		}
	})
	conn.OnDisconnect(func() {
		r.metrics.APConnected.WithLabelValues(apCfg.Name).Set(0)
	})

	r.conns = append(r.conns, conn)
}

// attachRateControl puts a newly seen station under the access point's
// configured algorithm.
func (r *Runtime) attachRateControl(ap string, sta *station.Station) {
	apCfg := r.accessPointConfig(ap)
	if apCfg == nil {
		return
	}

	name := apCfg.RateControl.Algorithm
	r.logger.Info("station appeared", "ap", ap, "radio", sta.Radio(), "station", sta.MAC(), "algorithm", name)

	if name == rc.KernelAuto {
		if err := sta.SetRcMode(false); err != nil {
			r.logger.Error("rate mode reset failed", "ap", ap, "station", sta.MAC(), "error", err)
		}
		if err := sta.SetTpcMode(false); err != nil {
			r.logger.Error("power mode reset failed", "ap", ap, "station", sta.MAC(), "error", err)
		}
		return
	}

	alg, err := rc.New(name, apCfg.RateControl.Options, r.logger)
	if err != nil {
		r.logger.Error("algorithm construction failed", "ap", ap, "algorithm", name, "error", err)
		return
	}
	if err := sta.AttachAlgorithm(r.ctx, alg); err != nil {
		r.logger.Error("algorithm attach failed", "ap", ap, "station", sta.MAC(), "error", err)
	}
}

func (r *Runtime) accessPointConfig(ap string) *config.AccessPointConfig {
	for i := range r.cfg.AccessPoints {
		if r.cfg.AccessPoints[i].Name == ap {
			return &r.cfg.AccessPoints[i]
		}
	}
	return nil
}

func (r *Runtime) Start() error {
	if r.exporter != nil {
		if err := r.exporter.Start(r.ctx); err != nil {
			r.Stop()
			return err
		}
	}

	for _, conn := range r.conns {
		r.wg.Add(1)
		go func(c *transport.Conn) {
			defer r.wg.Done()
			c.Run(r.ctx, func(ap string, line []byte) {
				_ = r.dispatcher.HandleLine(ap, line)
			})
		}(conn)
	}

	if r.cfg.Probe.IsEnabled() {
		probeCfg := probe.Config{
			Interval:   r.cfg.Probe.Interval.Duration(),
			WindowSize: r.cfg.Probe.WindowSize,
		}
		for _, apCfg := range r.cfg.AccessPoints {
			r.wg.Add(1)
			go func(name, host string) {
				defer r.wg.Done()
				probe.Loop(r.ctx, name, host, probeCfg, r.metrics, r.logger)
			}(apCfg.Name, apCfg.Host)
		}
	}

	return nil
}

func (r *Runtime) Stop() {
	// Stop control tasks while the connections are still up so algorithms can
	// release their stations cleanly.
	for _, apCfg := range r.cfg.AccessPoints {
		if registry := r.dispatcher.Registry(apCfg.Name); registry != nil {
			registry.StopAll()
		}
	}

	r.cancel()
	if r.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.exporter.Shutdown(ctx)
		cancel()
	}
	r.wg.Wait()

	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			r.logger.Error("trace recorder close failed", "error", err)
		}
	}
}

func (r *Runtime) snapshotStations() []export.StationStatus {
	var statuses []export.StationStatus
	for _, apCfg := range r.cfg.AccessPoints {
		registry := r.dispatcher.Registry(apCfg.Name)
		if registry == nil {
			continue
		}
		for _, sta := range registry.All() {
			status := export.StationStatus{
				AP:         sta.AP(),
				Radio:      sta.Radio(),
				MAC:        sta.MAC(),
				Associated: sta.Associated(),
				RcMode:     sta.RcMode().String(),
				TpcMode:    sta.TpcMode().String(),
				LastSeen:   sta.LastSeen(),
			}
			if task := sta.Task(); task != nil {
				status.TaskState = task.State().String()
			}
			for _, entry := range sta.Table().Snapshot() {
				status.RateCells = append(status.RateCells, export.RateCell{
					Rate:      entry.Rate,
					TxPower:   entry.TxPower,
					Attempts:  entry.Attempts,
					Successes: entry.Successes,
					Timestamp: entry.Timestamp,
				})
			}
			statuses = append(statuses, status)
		}
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].AP != statuses[j].AP {
			return statuses[i].AP < statuses[j].AP
		}
		return statuses[i].MAC < statuses[j].MAC
	})
	return statuses
}
