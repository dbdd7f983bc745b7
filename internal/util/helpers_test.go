package util

import (
	"log/slog"
	"testing"
)

func TestBoolValue(t *testing.T) {
	if got := BoolValue(nil, true); got != true {
		t.Fatalf("BoolValue(nil, true) = %v, want true", got)
	}
	if got := BoolValue(nil, false); got != false {
		t.Fatalf("BoolValue(nil, false) = %v, want false", got)
	}
	val := true
	if got := BoolValue(&val, false); got != true {
		t.Fatalf("BoolValue(true, false) = %v, want true", got)
	}
	val = false
	if got := BoolValue(&val, true); got != false {
		t.Fatalf("BoolValue(false, true) = %v, want false", got)
	}
}

func TestNetJoin(t *testing.T) {
	if got := NetJoin("10.0.0.2", 21059); got != "10.0.0.2:21059" {
		t.Fatalf("NetJoin = %q", got)
	}
	if got := NetJoin("fe80::1", 21059); got != "[fe80::1]:21059" {
		t.Fatalf("NetJoin v6 = %q", got)
	}
}

func TestCanonicalMAC(t *testing.T) {
	if got := CanonicalMAC("AA:BB:CC:DD:EE:FF"); got != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("CanonicalMAC = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel("debug"); err != nil || lvl != slog.LevelDebug {
		t.Fatalf("debug = %v, %v", lvl, err)
	}
	if lvl, err := ParseLevel("error"); err != nil || lvl != slog.LevelError {
		t.Fatalf("error = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("chatty accepted, want error")
	}
}
