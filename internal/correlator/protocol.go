package correlator

// Protocol is one of the recognized enrichment log types.
type Protocol int

const (
	HTTP Protocol = iota
	DNS
	SSH
	SSL
	FTP
	SMTP
	DHCP
	NTP
	Weird
	Notice
)

type protocolRule struct {
	name string
	// setsService: a connection without a service takes the protocol name
	// when one of its records is merged.
	setsService bool
}

var protocolRules = [...]protocolRule{
	HTTP:   {name: "http", setsService: true},
	DNS:    {name: "dns", setsService: true},
	SSH:    {name: "ssh", setsService: true},
	SSL:    {name: "ssl", setsService: true},
	FTP:    {name: "ftp", setsService: true},
	SMTP:   {name: "smtp", setsService: true},
	DHCP:   {name: "dhcp"},
	NTP:    {name: "ntp"},
	Weird:  {name: "weird"},
	Notice: {name: "notice"},
}

// Protocols returns every recognized protocol in enrichment order.
func Protocols() []Protocol {
	out := make([]Protocol, len(protocolRules))
	for i := range protocolRules {
		out[i] = Protocol(i)
	}
	return out
}

// ParseProtocol maps a log type such as "http" to its Protocol.
func ParseProtocol(logType string) (Protocol, bool) {
	for i, rule := range protocolRules {
		if rule.name == logType {
			return Protocol(i), true
		}
	}
	return 0, false
}

func (p Protocol) String() string {
	if p < 0 || int(p) >= len(protocolRules) {
		return "unknown"
	}
	return protocolRules[p].name
}

// SetsService reports whether merging a record of this protocol may fill in
// a missing connection service.
func (p Protocol) SetsService() bool {
	if p < 0 || int(p) >= len(protocolRules) {
		return false
	}
	return protocolRules[p].setsService
}
