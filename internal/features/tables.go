package features

import "strings"

// Lookup tables are unexported and only read through the functions below.

var serviceNames = map[string]string{
	"dns":      "domain",
	"http":     "http",
	"https":    "http_443",
	"ssh":      "ssh",
	"ftp":      "ftp",
	"ftp-data": "ftp_data",
	"smtp":     "smtp",
	"pop3":     "pop_3",
	"imap":     "imap4",
	"telnet":   "telnet",
	"nntp":     "nntp",
	"irc":      "IRC",
	"whois":    "whois",
	"ssl":      "private",
	"dhcp":     "other",
	"ntp":      "ntp_u",
	"ldap":     "ldap",
	"finger":   "finger",
}

var flags = map[string]string{
	"S0":     "S0",
	"SF":     "SF",
	"REJ":    "REJ",
	"S1":     "S1",
	"S2":     "S2",
	"S3":     "S3",
	"RSTO":   "RSTO",
	"RSTR":   "RSTR",
	"RSTOS0": "RSTOS0",
	"SH":     "SH",
	"OTH":    "OTH",
}

var stateDescriptions = map[string]string{
	"S0":     "Connection attempt seen, no reply",
	"SF":     "Normal establishment and termination",
	"REJ":    "Connection attempt rejected",
	"S1":     "Connection established, not terminated",
	"S2":     "Connection established, close attempt by originator seen",
	"S3":     "Connection established, close attempt by responder seen",
	"RSTO":   "Connection established, originator aborted",
	"RSTR":   "Connection established, responder aborted",
	"RSTOS0": "Originator sent a SYN followed by a RST",
	"SH":     "Originator sent a SYN followed by a FIN",
	"OTH":    "No SYN seen, not closed",
}

var transportProtocols = map[string]struct{}{"tcp": {}, "udp": {}, "icmp": {}}

var authServices = map[string]struct{}{
	"ssh": {}, "ftp": {}, "smtp": {}, "pop3": {}, "imap": {}, "telnet": {},
}

var hotPatterns = [...]string{
	"cmd=", "exec=", "/bin/", "/etc/", "passwd", "shadow", ".php?", "eval(", "system(",
}

var compromiseIndicators = [...]string{"exploit", "attack", "backdoor", "trojan"}

const (
	// StateNoReply is the conn_state of an unanswered connection attempt.
	StateNoReply = "S0"
	// StateRejected is the conn_state of a rejected connection attempt.
	StateRejected = "REJ"
	// StateNormal is the conn_state of a normally closed connection.
	StateNormal = "SF"

	defaultService  = "other"
	defaultFlag     = "OTH"
	defaultProtocol = "tcp"
	unknownState    = "Unknown state"
)

// MapService translates a Zeek service name. Unmapped or empty names map to
// "other".
func MapService(service string) string {
	if mapped, ok := serviceNames[service]; ok {
		return mapped
	}
	return defaultService
}

// MapFlag translates a Zeek conn_state. Unknown states map to "OTH".
func MapFlag(state string) string {
	if flag, ok := flags[state]; ok {
		return flag
	}
	return defaultFlag
}

// MapProtocol lower-cases the transport protocol; anything outside
// tcp/udp/icmp maps to "tcp".
func MapProtocol(proto string) string {
	p := strings.ToLower(proto)
	if _, ok := transportProtocols[p]; ok {
		return p
	}
	return defaultProtocol
}

// DescribeState returns a human-readable description of a conn_state.
func DescribeState(state string) string {
	if desc, ok := stateDescriptions[state]; ok {
		return desc
	}
	return unknownState
}

// IsAuthService reports whether a raw service normally requires a login.
func IsAuthService(service string) bool {
	_, ok := authServices[service]
	return ok
}

// HotPatternCount counts the suspicious patterns present in a URI; each
// pattern counts once.
func HotPatternCount(uri string) int {
	n := 0
	for _, p := range hotPatterns {
		if strings.Contains(uri, p) {
			n++
		}
	}
	return n
}

// IsCompromiseNote reports whether a notice type names a compromise.
func IsCompromiseNote(note string) bool {
	lower := strings.ToLower(note)
	for _, indicator := range compromiseIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
