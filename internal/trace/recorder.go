// Package trace persists decoded telemetry to sqlite for offline analysis.
package trace

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/airtap/ratectl/internal/proto"
	"github.com/airtap/ratectl/internal/util"
)

const queueDepth = 1024

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS txs_events (
	session    TEXT NOT NULL,
	ap         TEXT NOT NULL,
	radio      TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	mac        TEXT NOT NULL,
	frames     INTEGER NOT NULL,
	acked      INTEGER NOT NULL,
	probe      INTEGER NOT NULL,
	rate0      INTEGER, count0 INTEGER, txpower0 INTEGER,
	rate1      INTEGER, count1 INTEGER, txpower1 INTEGER,
	rate2      INTEGER, count2 INTEGER, txpower2 INTEGER,
	rate3      INTEGER, count3 INTEGER, txpower3 INTEGER
);
CREATE TABLE IF NOT EXISTS stats_events (
	session       TEXT NOT NULL,
	ap            TEXT NOT NULL,
	radio         TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	mac           TEXT NOT NULL,
	rate          INTEGER NOT NULL,
	avg_prob      INTEGER NOT NULL,
	avg_tp        INTEGER NOT NULL,
	cur_success   INTEGER NOT NULL,
	cur_attempts  INTEGER NOT NULL,
	hist_success  INTEGER NOT NULL,
	hist_attempts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS txs_events_mac ON txs_events(session, mac);
CREATE INDEX IF NOT EXISTS stats_events_mac ON stats_events(session, mac);
`

type record struct {
	ap string
	ev proto.Event
}

// Recorder appends decoded events to a sqlite trace, one session per
// controller run. Writes happen on a dedicated goroutine fed from a bounded
// queue; when the queue is full events are dropped rather than stalling the
// dispatch path.
type Recorder struct {
	db        *sql.DB
	session   string
	queue     chan record
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Uint64
	logger    util.Logger
}

func New(path string, logger util.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	session := uuid.New().String()
	if _, err := db.Exec("INSERT INTO sessions (id, started_at) VALUES (?, ?)", session, time.Now().UnixMilli()); err != nil {
		db.Close()
		return nil, fmt.Errorf("insert session: %w", err)
	}

	r := &Recorder{
		db:      db,
		session: session,
		queue:   make(chan record, queueDepth),
		logger:  logger,
	}
	r.wg.Add(1)
	go r.run()
	logger.Info("trace recorder started", "path", path, "session", session)
	return r, nil
}

// Session returns the run identifier rows are keyed by.
func (r *Recorder) Session() string { return r.session }

// Dropped returns the number of events lost to queue overflow.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// HandleEvent implements the dispatcher tap.
func (r *Recorder) HandleEvent(ap string, ev proto.Event) {
	switch ev.(type) {
	case *proto.TxStatusEvent, *proto.RcStatsEvent:
	default:
		return
	}
	select {
	case r.queue <- record{ap: ap, ev: ev}:
	default:
		r.dropped.Add(1)
	}
}

// Close drains the queue and closes the database.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("trace recorder dropped events", "count", n)
	}
	return r.db.Close()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	insertTxs, err := r.db.Prepare(`INSERT INTO txs_events
		(session, ap, radio, timestamp, mac, frames, acked, probe,
		 rate0, count0, txpower0, rate1, count1, txpower1,
		 rate2, count2, txpower2, rate3, count3, txpower3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		r.logger.Error("trace recorder prepare failed", "error", err)
		return
	}
	defer insertTxs.Close()

	insertStats, err := r.db.Prepare(`INSERT INTO stats_events
		(session, ap, radio, timestamp, mac, rate, avg_prob, avg_tp,
		 cur_success, cur_attempts, hist_success, hist_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		r.logger.Error("trace recorder prepare failed", "error", err)
		return
	}
	defer insertStats.Close()

	for rec := range r.queue {
		switch e := rec.ev.(type) {
		case *proto.TxStatusEvent:
			args := []any{
				r.session, rec.ap, e.Radio, int64(e.Timestamp), e.MAC,
				e.Frames, e.Acked, e.Probe,
			}
			for i := 0; i < proto.MaxStages; i++ {
				args = append(args, e.Stages[i].Rate, e.Stages[i].Count, e.Stages[i].TxPower)
			}
			if _, err := insertTxs.Exec(args...); err != nil {
				r.logger.Error("trace insert failed", "table", "txs_events", "error", err)
			}
		case *proto.RcStatsEvent:
			_, err := insertStats.Exec(
				r.session, rec.ap, e.Radio, int64(e.Timestamp), e.MAC,
				e.Rate, int64(e.AvgProb), int64(e.AvgTput),
				int64(e.CurSuccess), int64(e.CurAttempts),
				int64(e.HistSuccess), int64(e.HistAttempts),
			)
			if err != nil {
				r.logger.Error("trace insert failed", "table", "stats_events", "error", err)
			}
		}
	}
}
