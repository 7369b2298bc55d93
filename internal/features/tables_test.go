package features

import "testing"

func TestMapService(t *testing.T) {
	cases := map[string]string{
		"https":    "http_443",
		"dns":      "domain",
		"ftp-data": "ftp_data",
		"irc":      "IRC",
		"ssl":      "private",
		"gopher":   "other",
		"":         "other",
	}
	for in, want := range cases {
		if got := MapService(in); got != want {
			t.Errorf("MapService(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapFlagAndProtocol(t *testing.T) {
	if MapFlag("RSTOS0") != "RSTOS0" || MapFlag("XYZ") != "OTH" || MapFlag("") != "OTH" {
		t.Errorf("Unexpected flag mapping")
	}
	if MapProtocol("ICMP") != "icmp" || MapProtocol("sctp") != "tcp" || MapProtocol("") != "tcp" {
		t.Errorf("Unexpected protocol mapping")
	}
	if DescribeState("REJ") != "Connection attempt rejected" || DescribeState("??") != "Unknown state" {
		t.Errorf("Unexpected state description")
	}
}

func TestHotPatternCount(t *testing.T) {
	if got := HotPatternCount("/a?cmd=1&cmd=2"); got != 1 {
		t.Errorf("Expected each pattern to count once, got %d", got)
	}
	if got := HotPatternCount("/cgi-bin/x?exec=system(eval(1))"); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}
}
