package domain

// Envelope is the uniform response returned by the dispatcher regardless of
// which component handled the request. Transports render it as a Slack
// message or an HTTP JSON body; they never see raw component errors.
type Envelope struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Status   Status            `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Status marks an envelope as a success or a handled failure.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// OK reports whether the envelope carries a successful result.
func (e Envelope) OK() bool {
	return e.Status == StatusOK
}

// Dropped reports whether the envelope is the fail-closed sentinel: the
// request produced no reply and transports must not deliver anything.
func (e Envelope) Dropped() bool {
	return e.Status == ""
}

// InboundMessage is one message arriving from any transport, normalized
// before parsing and routing.
type InboundMessage struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	ChannelID string `json:"channel_id"`
	ThreadTS  string `json:"thread_ts"`
	Text      string `json:"text"`
	Source    string `json:"source"` // "slack", "api", "ws"
}
