package proto

import (
	"strconv"
	"strings"
)

// Outbound command construction. Each function yields one command line
// (without the trailing newline); actual socket I/O is the transport's job.

// RateModeCommand switches a radio between kernel-driven and user-driven
// rate selection.
func RateModeCommand(phy string, manual bool) string {
	if manual {
		return phy + ";manual"
	}
	return phy + ";auto"
}

// PowerModeCommand is the transmit-power analog of RateModeCommand.
func PowerModeCommand(phy string, manual bool) string {
	if manual {
		return phy + ";tpc_manual"
	}
	return phy + ";tpc_auto"
}

// RatesCommand installs an MRR chain for a station: hexadecimal rate indices
// and per-stage retry counts, comma-joined.
func RatesCommand(phy, mac string, rates, counts []int) string {
	var b strings.Builder
	b.WriteString(phy)
	b.WriteString(";rates;")
	b.WriteString(mac)
	b.WriteByte(';')
	writeHexList(&b, rates)
	b.WriteByte(';')
	writeHexList(&b, counts)
	return b.String()
}

// PowerCommand installs a transmit-power table for a station.
func PowerCommand(phy, mac string, levels []int) string {
	var b strings.Builder
	b.WriteString(phy)
	b.WriteString(";power;")
	b.WriteString(mac)
	b.WriteByte(';')
	writeHexList(&b, levels)
	return b.String()
}

// ProbeCommand requests a sounding transmission at a specific rate.
func ProbeCommand(phy, mac string, rate int) string {
	return phy + ";probe;" + mac + ";" + strconv.FormatInt(int64(rate), 16)
}

// StartCommand enables the telemetry stream on a radio.
func StartCommand(phy string) string {
	return phy + ";start"
}

// StopCommand disables the telemetry stream on a radio.
func StopCommand(phy string) string {
	return phy + ";stop"
}

// ResetStatsCommand zeroes the kernel-side rate statistics on a radio.
func ResetStatsCommand(phy string) string {
	return phy + ";reset_stats"
}

func writeHexList(b *strings.Builder, values []int) {
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(v), 16))
	}
}
