// Package probe pings access point hosts so operators can tell a dead
// device apart from a dead control daemon.
package probe

import (
	"context"
	"math/rand"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/airtap/ratectl/internal/export"
	"github.com/airtap/ratectl/internal/util"
)

type Config struct {
	Interval   time.Duration
	WindowSize int
}

type probeWindow struct {
	size    int
	samples int
	lost    int
	rttsMs  []float64
}

func newProbeWindow(size int) *probeWindow {
	if size <= 0 {
		size = 5
	}
	return &probeWindow{size: size}
}

func (w *probeWindow) addSample(ok bool, rtt time.Duration) {
	w.samples++
	if !ok {
		w.lost++
		return
	}
	w.rttsMs = append(w.rttsMs, float64(rtt.Microseconds())/1000.0)
}

func (w *probeWindow) complete() bool {
	return w.samples >= w.size
}

func (w *probeWindow) reset() {
	w.samples = 0
	w.lost = 0
	w.rttsMs = w.rttsMs[:0]
}

func (w *probeWindow) reachable() bool {
	return w.lost < w.size
}

func (w *probeWindow) avgRTTMs() float64 {
	if len(w.rttsMs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.rttsMs {
		sum += v
	}
	return sum / float64(len(w.rttsMs))
}

// Loop probes one access point host until the context is cancelled,
// publishing reachability and RTT gauges per completed window.
func Loop(ctx context.Context, ap, host string, cfg Config, metrics *export.Metrics, logger util.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	id := rand.Intn(0xffff)
	var seq uint16

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ip := resolve(ctx, host)
		if ip == nil {
			logger.Error("probe waiting, host does not resolve", "ap", ap, "host", host)
			if !sleepCtx(ctx, interval) {
				return
			}
			continue
		}

		isV4 := ip.To4() != nil
		network := "ip4:icmp"
		proto := 1
		echoType := icmp.Type(ipv4.ICMPTypeEcho)
		echoReplyType := icmp.Type(ipv4.ICMPTypeEchoReply)
		if !isV4 {
			network = "ip6:ipv6-icmp"
			proto = 58
			echoType = icmp.Type(ipv6.ICMPTypeEchoRequest)
			echoReplyType = icmp.Type(ipv6.ICMPTypeEchoReply)
		}

		conn, err := icmp.ListenPacket(network, "")
		if err != nil {
			logger.Error("probe socket error", "ap", ap, "error", err)
			if !sleepCtx(ctx, interval) {
				return
			}
			continue
		}

		window := newProbeWindow(cfg.WindowSize)
		ticker := time.NewTicker(interval)
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				_ = conn.Close()
				return
			case <-ticker.C:
				seq++
				rtt, ok := sendPing(conn, ip, id, seq, echoType, echoReplyType, proto, interval)
				window.addSample(ok, rtt)
				if window.complete() {
					reachable := 0.0
					if window.reachable() {
						reachable = 1.0
					}
					metrics.APReachable.WithLabelValues(ap).Set(reachable)
					metrics.APPingRTT.WithLabelValues(ap).Set(window.avgRTTMs())
					window.reset()
				}
			}
		}
	}
}

func resolve(ctx context.Context, host string) net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	return addrs[0].IP
}

func sendPing(conn *icmp.PacketConn, ip net.IP, id int, seq uint16, echoType, replyType icmp.Type, proto int, timeout time.Duration) (time.Duration, bool) {
	msg := icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  int(seq),
			Data: []byte("ratectl"),
		},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, false
	}
	dst := &net.IPAddr{IP: ip}
	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, false
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, false
	}
	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, false
		}
		ipAddr, ok := peer.(*net.IPAddr)
		if ok && ipAddr.IP != nil && !ipAddr.IP.Equal(ip) {
			continue
		}
		parsed, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		if parsed.Type != replyType {
			continue
		}
		echo, ok := parsed.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		if echo.ID == id && echo.Seq == int(seq) {
			return time.Since(start), true
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
