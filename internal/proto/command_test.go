package proto

import "testing"

func TestCommandLines(t *testing.T) {
	mac := "cc:32:e5:9d:ab:58"
	cases := []struct {
		got  string
		want string
	}{
		{RateModeCommand("phy0", true), "phy0;manual"},
		{RateModeCommand("phy0", false), "phy0;auto"},
		{PowerModeCommand("phy1", true), "phy1;tpc_manual"},
		{PowerModeCommand("phy1", false), "phy1;tpc_auto"},
		{RatesCommand("phy0", mac, []int{0xd7, 0xc5}, []int{4, 2}), "phy0;rates;" + mac + ";d7,c5;4,2"},
		{PowerCommand("phy0", mac, []int{0x14, 0x0a}), "phy0;power;" + mac + ";14,a"},
		{ProbeCommand("phy0", mac, 0xd7), "phy0;probe;" + mac + ";d7"},
		{StartCommand("phy0"), "phy0;start"},
		{StopCommand("phy0"), "phy0;stop"},
		{ResetStatsCommand("phy0"), "phy0;reset_stats"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("command = %q, want %q", tc.got, tc.want)
		}
	}
}
