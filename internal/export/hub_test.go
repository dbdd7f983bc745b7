package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/airtap/ratectl/internal/proto"
)

func TestHubBroadcastsTxStatus(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	hub := NewEventHub(done)

	client := &hubClient{send: make(chan []byte, 4)}
	hub.register(client)
	defer hub.unregister(client)

	ev := &proto.TxStatusEvent{
		Header: proto.Header{Radio: "phy0", Timestamp: 42},
		MAC:    "cc:32:e5:9d:ab:58",
		Frames: 3,
		Acked:  2,
	}
	ev.Stages[0] = proto.MrrStage{Rate: 0xd7, Count: 2, TxPower: proto.SentinelIndex}
	ev.Populated = 1
	ev.Credited = 0

	hub.HandleEvent("ap0", ev)

	var data []byte
	select {
	case data = <-client.send:
	case <-time.After(2 * time.Second):
		t.Fatalf("no broadcast received")
	}

	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if msg.AP != "ap0" || msg.Type != "txs" || msg.Radio != "phy0" {
		t.Fatalf("message = %+v", msg)
	}
	if len(msg.Stages) != 1 {
		t.Fatalf("stages = %v, want 1 entry", msg.Stages)
	}
	if msg.Stages[0].Rate != 0xd7 || msg.Stages[0].Attempts != 6 || msg.Stages[0].Successes != 2 {
		t.Fatalf("stage = %+v", msg.Stages[0])
	}
}

func TestHubDropsOnFullClient(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	hub := NewEventHub(done)

	client := &hubClient{send: make(chan []byte, 1)}
	hub.register(client)
	defer hub.unregister(client)

	ev := &proto.StationEvent{
		Header: proto.Header{Radio: "phy0", Timestamp: 1},
		Action: proto.StationAdd,
		MAC:    "cc:32:e5:9d:ab:58",
	}
	for i := 0; i < 8; i++ {
		hub.HandleEvent("ap0", ev)
	}

	// The client buffer holds one message; the rest were dropped without
	// blocking the dispatch path.
	select {
	case <-client.send:
	case <-time.After(2 * time.Second):
		t.Fatalf("no broadcast received")
	}
}

func TestBuildEventMessageModeAck(t *testing.T) {
	msg := buildEventMessage("ap0", &proto.ModeAckEvent{
		Header: proto.Header{Radio: "phy1", Timestamp: 7},
		MAC:    "cc:32:e5:9d:ab:58",
		Field:  proto.ModePower,
		Manual: true,
	})
	if msg.Type != "mode" || msg.ModeAxis != "tpc" || msg.Mode != "manual" {
		t.Fatalf("message = %+v", msg)
	}
}
