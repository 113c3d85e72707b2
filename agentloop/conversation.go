package agentloop

import (
	"sync"

	"github.com/martinemde/sitesmith/unifiedllm"
)

// Conversation is the append-only transcript of one run. Turns are never
// mutated or removed once appended.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds copies of turns at the end of the transcript.
func (c *Conversation) Append(turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range turns {
		c.turns = append(c.turns, t.Clone())
	}
}

// Turns returns a deep copy of the transcript. Changes to the result never
// reach the conversation.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Messages renders the transcript for a model call.
func (c *Conversation) Messages() []unifiedllm.Message {
	return ConvertHistoryToMessages(c.Turns())
}
