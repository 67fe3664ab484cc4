// Package platform is the boundary between the chat pipeline and whatever
// surface the bot is speaking on. The pipeline only ever sees these
// interfaces, so a new surface is a new implementation here and nothing
// else changes.
package platform

import (
	"context"
	"time"
)

// Message is one inbound or historical chat message.
type Message struct {
	ID        string
	ChannelID string
	UserID    string
	UserName  string
	Content   string
	FromBot   bool
	At        time.Time
}

// Messenger delivers the bot's replies to a channel.
type Messenger interface {
	// Send posts text to a channel. Implementations handle any
	// platform-side chunking or escaping.
	Send(ctx context.Context, channelID, text string) error
}

// HistorySource provides recent channel history, oldest first.
type HistorySource interface {
	Recent(ctx context.Context, channelID string, n int) ([]Message, error)
}
