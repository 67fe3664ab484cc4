package pipeline

import (
	"context"

	"github.com/revisionhiep-create/Project-Astral/internal/platform"
	"github.com/revisionhiep-create/Project-Astral/internal/store"
)

// storeHistory serves history straight from the turn store. Surfaces with
// no native history (stdio) use this; a gateway surface could serve its
// own instead.
type storeHistory struct {
	st *store.Store
}

// StoreHistory adapts the turn store to the platform history interface.
func StoreHistory(st *store.Store) platform.HistorySource {
	return &storeHistory{st: st}
}

func (h *storeHistory) Recent(ctx context.Context, channelID string, n int) ([]platform.Message, error) {
	turns, err := h.st.RecentTurns(channelID, n)
	if err != nil {
		return nil, err
	}
	out := make([]platform.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, platform.Message{
			ID:        t.MessageID,
			ChannelID: t.ChannelID,
			UserName:  t.UserName,
			Content:   t.Content,
			FromBot:   t.Role == "bot",
			At:        t.CreatedAt,
		})
	}
	return out, nil
}
