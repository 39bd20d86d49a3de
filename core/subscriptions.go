package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"littercoin/core/types"
	"littercoin/observability"
)

const eventHistoryLimit = 2048

// EventUpdate wraps a committed ledger event with its position in the stream.
// The cursor is the decimal sequence number; clients resume by passing the
// last cursor they processed.
type EventUpdate struct {
	Sequence uint64
	Cursor   string
	Event    *types.Event
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if update.Event != nil {
		event := &types.Event{Type: update.Event.Type}
		if update.Event.Attributes != nil {
			event.Attributes = make(map[string]string, len(update.Event.Attributes))
			for key, value := range update.Event.Attributes {
				event.Attributes[key] = value
			}
		}
		cloned.Event = event
	}
	return cloned
}

func (l *Ledger) publishEvent(event *types.Event) {
	if l == nil || event == nil {
		return
	}

	l.streamMu.Lock()
	if l.streamSubs == nil {
		l.streamSubs = make(map[uint64]chan EventUpdate)
	}
	l.streamSeq++
	update := EventUpdate{
		Sequence: l.streamSeq,
		Cursor:   strconv.FormatUint(l.streamSeq, 10),
		Event:    event,
	}
	l.streamHistory = append(l.streamHistory, cloneEventUpdate(update))
	if len(l.streamHistory) > eventHistoryLimit {
		excess := len(l.streamHistory) - eventHistoryLimit
		trimmed := make([]EventUpdate, eventHistoryLimit)
		copy(trimmed, l.streamHistory[excess:])
		l.streamHistory = trimmed
	}
	subscribers := make([]chan EventUpdate, 0, len(l.streamSubs))
	for _, ch := range l.streamSubs {
		subscribers = append(subscribers, ch)
	}
	l.streamMu.Unlock()

	observability.Events().RecordEvent(event.Type)

	broadcast := cloneEventUpdate(update)
	for _, ch := range subscribers {
		select {
		case ch <- broadcast:
		default:
		}
	}
}

// SubscribeEvents registers a subscriber for committed ledger events starting
// after the supplied cursor. The returned backlog replays retained history
// beyond the cursor; live updates follow on the channel. A subscriber that
// falls behind misses updates rather than blocking the ledger and should
// reconnect with its last cursor.
func (l *Ledger) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if l == nil {
		return nil, nil, nil, fmt.Errorf("ledger not initialised")
	}
	updates := make(chan EventUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}

	l.streamMu.Lock()
	if l.streamSubs == nil {
		l.streamSubs = make(map[uint64]chan EventUpdate)
	}
	id := l.streamNextID
	l.streamNextID++
	l.streamSubs[id] = updates
	history := make([]EventUpdate, len(l.streamHistory))
	copy(history, l.streamHistory)
	l.streamMu.Unlock()

	backlog := make([]EventUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.streamMu.Lock()
			sub, ok := l.streamSubs[id]
			if ok {
				delete(l.streamSubs, id)
				close(sub)
			}
			l.streamMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
