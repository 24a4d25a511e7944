package domain

import (
	"time"
)

// RecentExchangeCap bounds the per-thread observability log. The cap exists
// so long-lived threads cannot grow thread state without bound; the persona's
// own session remains the authoritative replay history.
const RecentExchangeCap = 20

// Exchange is one (question, answer) pair recorded on a thread for
// observability.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// ThreadState tracks which persona is active in one conversation thread.
// An empty ActivePersona means the thread is idle.
type ThreadState struct {
	ThreadKey     string     `json:"thread_key"`
	ActivePersona string     `json:"active_persona,omitempty"`
	Recent        []Exchange `json:"recent,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ThreadKey builds the composite routing key for a conversation.
func ThreadKey(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

// Active reports whether a persona currently owns this thread.
func (t *ThreadState) Active() bool {
	return t != nil && t.ActivePersona != ""
}

// RecordExchange appends a question/answer pair, evicting the oldest entry
// once the cap is reached.
func (t *ThreadState) RecordExchange(question, answer string) {
	t.Recent = append(t.Recent, Exchange{
		Question: question,
		Answer:   answer,
		At:       time.Now(),
	})
	if len(t.Recent) > RecentExchangeCap {
		t.Recent = t.Recent[len(t.Recent)-RecentExchangeCap:]
	}
}
