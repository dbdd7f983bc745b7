package export

import (
	"encoding/json"
	"sync"

	"github.com/airtap/ratectl/internal/proto"
)

// eventMessage is the JSON shape pushed to websocket subscribers.
type eventMessage struct {
	AP        string `json:"ap"`
	Type      string `json:"type"`
	Radio     string `json:"radio"`
	Timestamp uint64 `json:"timestamp"`
	MAC       string `json:"mac,omitempty"`

	Frames   uint32           `json:"frames,omitempty"`
	Acked    uint32           `json:"acked,omitempty"`
	Probe    bool             `json:"probe,omitempty"`
	Stages   []stageMessage   `json:"stages,omitempty"`
	Stats    *rcStatsMessage  `json:"stats,omitempty"`
	Action   string           `json:"action,omitempty"`
	ModeAxis string           `json:"mode_axis,omitempty"`
	Mode     string           `json:"mode,omitempty"`
}

type stageMessage struct {
	Rate      int    `json:"rate"`
	Count     uint32 `json:"count"`
	TxPower   int    `json:"txpower"`
	Attempts  uint64 `json:"attempts"`
	Successes uint64 `json:"successes"`
}

type rcStatsMessage struct {
	Rate         int    `json:"rate"`
	AvgProb      uint64 `json:"avg_prob"`
	AvgTput      uint64 `json:"avg_tp"`
	CurSuccess   uint64 `json:"cur_success"`
	CurAttempts  uint64 `json:"cur_attempts"`
	HistSuccess  uint64 `json:"hist_success"`
	HistAttempts uint64 `json:"hist_attempts"`
}

// EventHub fans decoded events out to websocket subscribers. Slow clients
// lose messages rather than stalling the dispatch path.
type EventHub struct {
	mu        sync.Mutex
	clients   map[*hubClient]struct{}
	broadcast chan []byte
	done      <-chan struct{}
}

type hubClient struct {
	send      chan []byte
	closeOnce sync.Once
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func NewEventHub(done <-chan struct{}) *EventHub {
	h := &EventHub{
		clients:   make(map[*hubClient]struct{}),
		broadcast: make(chan []byte, 256),
		done:      done,
	}
	go h.run()
	return h
}

func (h *EventHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*hubClient]struct{})
			h.mu.Unlock()
			return
		case data := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *EventHub) register(client *hubClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) unregister(client *hubClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
}

// HandleEvent implements the dispatcher tap: it serializes the event and
// queues it for broadcast, dropping on a full queue.
func (h *EventHub) HandleEvent(ap string, ev proto.Event) {
	msg := buildEventMessage(ap, ev)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

func buildEventMessage(ap string, ev proto.Event) eventMessage {
	hdr := ev.EventHeader()
	msg := eventMessage{AP: ap, Radio: hdr.Radio, Timestamp: hdr.Timestamp}

	switch e := ev.(type) {
	case *proto.TxStatusEvent:
		msg.Type = "txs"
		msg.MAC = e.MAC
		msg.Frames = e.Frames
		msg.Acked = e.Acked
		msg.Probe = e.Probe
		for i := 0; i < e.Populated; i++ {
			msg.Stages = append(msg.Stages, stageMessage{
				Rate:      e.Stages[i].Rate,
				Count:     e.Stages[i].Count,
				TxPower:   e.Stages[i].TxPower,
				Attempts:  e.Attempts(i),
				Successes: e.Successes(i),
			})
		}
	case *proto.RcStatsEvent:
		msg.Type = "stats"
		msg.MAC = e.MAC
		msg.Stats = &rcStatsMessage{
			Rate:         e.Rate,
			AvgProb:      e.AvgProb,
			AvgTput:      e.AvgTput,
			CurSuccess:   e.CurSuccess,
			CurAttempts:  e.CurAttempts,
			HistSuccess:  e.HistSuccess,
			HistAttempts: e.HistAttempts,
		}
	case *proto.StationEvent:
		msg.Type = "sta"
		msg.MAC = e.MAC
		msg.Action = e.Action.String()
	case *proto.ModeAckEvent:
		msg.Type = "mode"
		msg.MAC = e.MAC
		msg.Mode = "auto"
		if e.Manual {
			msg.Mode = "manual"
		}
		msg.ModeAxis = "rc"
		if e.Field == proto.ModePower {
			msg.ModeAxis = "tpc"
		}
	default:
		msg.Type = "unknown"
	}
	return msg
}
