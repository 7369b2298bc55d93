// Package features derives NSL-KDD feature vectors from correlated
// connections.
package features

import (
	"sort"
	"strconv"
	"strings"

	"Go2NetKDD/internal/model"
)

// WindowSeconds is the trailing interval of the time-based features.
const WindowSeconds = 2.0

// Engine computes feature vectors. It holds no state between calls.
type Engine struct {
	span float64
}

// NewEngine returns an engine with the standard 2 second window.
func NewEngine() *Engine {
	return &Engine{span: WindowSeconds}
}

// Compute returns one vector per connection, in ascending timestamp order
// with ties broken by UID. The returned batch pairs every vector with its
// connection by index. The input slice is not modified.
func (e *Engine) Compute(conns []*model.Connection) *model.Batch {
	ordered := make([]*model.Connection, len(conns))
	copy(ordered, conns)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TS != ordered[j].TS {
			return ordered[i].TS < ordered[j].TS
		}
		return ordered[i].UID < ordered[j].UID
	})

	hosts := newWindow(e.span)
	services := newWindow(e.span)

	batch := &model.Batch{
		Vectors:     make([]model.FeatureVector, 0, len(ordered)),
		Connections: ordered,
	}
	for _, conn := range ordered {
		fv := Static(conn)

		if conn.OrigH != "" && conn.RespH != "" {
			b := hosts.push(conn.OrigH+"\x00"+conn.RespH, conn.TS, conn.ConnState)
			fv.Count = b.size()
			fv.SerrorRate = b.noReplyRate()
			fv.RerrorRate = b.rejectedRate()
		}
		if conn.Service != "" {
			b := services.push(conn.Service, conn.TS, conn.ConnState)
			fv.SrvCount = b.size()
			fv.SrvSerrorRate = b.noReplyRate()
		}

		batch.Vectors = append(batch.Vectors, fv)
	}
	return batch
}

// Static computes the features that depend on the connection alone. The
// window features are left at zero.
func Static(conn *model.Connection) model.FeatureVector {
	return model.FeatureVector{
		Duration:       parseFloat(conn.Duration),
		ProtocolType:   MapProtocol(conn.Proto),
		Service:        MapService(conn.Service),
		Flag:           MapFlag(conn.ConnState),
		SrcBytes:       parseInt(conn.OrigBytes),
		DstBytes:       parseInt(conn.RespBytes),
		WrongFragment:  wrongFragment(conn),
		Hot:            hot(conn),
		LoggedIn:       loggedIn(conn),
		NumCompromised: numCompromised(conn),
	}
}

func wrongFragment(conn *model.Connection) int {
	n := 0
	for _, rec := range conn.Records("weird") {
		if strings.Contains(strings.ToLower(rec.Value("name")), "frag") {
			n++
		}
	}
	return n
}

func hot(conn *model.Connection) int {
	n := 0
	for _, rec := range conn.Records("http") {
		n += HotPatternCount(rec.Value("uri"))
	}
	return n
}

// loggedIn is 1 for an authenticated service closed normally, or for http
// traffic carrying credentials.
func loggedIn(conn *model.Connection) int {
	if IsAuthService(conn.Service) && conn.ConnState == StateNormal {
		return 1
	}
	for _, rec := range conn.Records("http") {
		if rec.Value("username") != "" || strings.Contains(rec.Value("request_headers"), "Authorization") {
			return 1
		}
	}
	return 0
}

func numCompromised(conn *model.Connection) int {
	n := 0
	for _, rec := range conn.Records("notice") {
		if IsCompromiseNote(rec.Value("note")) {
			n++
		}
	}
	return n
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return int64(parseFloat(s))
	}
	return v
}
