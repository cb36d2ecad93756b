package service

import (
	"context"
	"encoding/json"
	"log"

	"meshmap/internal/repository"
)

// RecordEvents appends every event from events to the journal until ctx ends
// or events is closed
func RecordEvents(ctx context.Context, events <-chan Event, journal repository.Journal) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			entry, err := journalEntry(ev)
			if err != nil {
				log.Printf("[journal] encode %s: %v", ev.Type, err)
				continue
			}
			if _, err := journal.Append(ctx, entry); err != nil {
				log.Printf("[journal] append %s: %v", ev.Type, err)
			}
		}
	}
}

func journalEntry(ev Event) (repository.Entry, error) {
	entry := repository.Entry{
		Type: string(ev.Type),
		Time: ev.Time,
	}
	switch p := ev.Payload.(type) {
	case ProbePayload:
		entry.Sweep = p.Sweep
	case SweepPayload:
		entry.Sweep = p.Sweep
	}
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return entry, err
		}
		entry.Payload = data
	}
	return entry, nil
}
