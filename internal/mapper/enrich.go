package mapper

import (
	"net"
	"net/http"
	"time"

	"project/internal/domain/event"
)

// ClientIPMapper records the request's source address into the _ip property
// unless the client supplied one (server-side SDKs forward the real address
// themselves).
type ClientIPMapper struct{}

func (ClientIPMapper) Map(e *event.Event, _ http.Header, source net.IP) ([]Entry, error) {
	if source == nil {
		return nil, nil
	}
	e.SetProperty("_ip", source.String())
	return nil, nil
}

// UserAgentMapper copies the User-Agent header into the _user_agent property.
type UserAgentMapper struct{}

func (UserAgentMapper) Map(e *event.Event, headers http.Header, _ net.IP) ([]Entry, error) {
	ua := headers.Get("User-Agent")
	if ua == "" {
		return nil, nil
	}
	e.SetProperty("_user_agent", ua)
	return nil, nil
}

// CollectedAtMapper stamps the server receive time. The value is
// authoritative and overwrites anything the client sent; it is also echoed
// back in the response so clients can measure clock skew.
type CollectedAtMapper struct {
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func (m CollectedAtMapper) Map(e *event.Event, _ http.Header, _ net.IP) ([]Entry, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	ts := now().UTC().Format(time.RFC3339)
	e.OverwriteProperty("_collected_at", ts)

	return []Entry{{Key: "X-Collected-At", Value: ts}}, nil
}
