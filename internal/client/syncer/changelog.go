package syncer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
)

// ErrInvalidChange reports a registration with an empty id or unknown action.
var ErrInvalidChange = errors.New("invalid change")

type docEntry struct {
	change models.DocumentChange
	seq    uint64
}

type tagEntry struct {
	change models.TagChange
	seq    uint64
}

// ChangeLog records mutations made between syncs. Every registration gets a
// sequence number so a sync can clear exactly what it merged.
type ChangeLog struct {
	mu       sync.Mutex
	seq      uint64
	docs     map[string]docEntry
	tags     map[string]tagEntry
	settings uint64
}

// NewChangeLog returns an empty log.
func NewChangeLog() *ChangeLog {
	return &ChangeLog{
		docs: map[string]docEntry{},
		tags: map[string]tagEntry{},
	}
}

// Snapshot is a copy of the log taken at merge time.
type Snapshot struct {
	Changes models.ChangeSet

	docSeq      map[string]uint64
	tagSeq      map[string]uint64
	settingsSeq uint64
}

func validate(id string, action models.ChangeAction) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidChange)
	}
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidChange, action)
	}
	return nil
}

// RegisterDocument records a pending document change. A later registration
// for the same id replaces the earlier one. Delete entries drop any payload.
func (l *ChangeLog) RegisterDocument(id string, action models.ChangeAction, data *models.DocumentMetadata) error {
	if err := validate(id, action); err != nil {
		return err
	}
	ch := models.DocumentChange{Action: action}
	if data != nil && action != models.ActionDelete {
		d := data.Clone()
		ch.Data = &d
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.docs[id] = docEntry{change: ch, seq: l.seq}
	return nil
}

// RegisterTag records a pending tag change.
func (l *ChangeLog) RegisterTag(id string, action models.ChangeAction, data *models.Tag) error {
	if err := validate(id, action); err != nil {
		return err
	}
	ch := models.TagChange{Action: action}
	if data != nil && action != models.ActionDelete {
		t := *data
		ch.Data = &t
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.tags[id] = tagEntry{change: ch, seq: l.seq}
	return nil
}

// RegisterSettings marks the settings dirty.
func (l *ChangeLog) RegisterSettings() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.settings = l.seq
}

// IsEmpty reports whether nothing is pending.
func (l *ChangeLog) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.docs) == 0 && len(l.tags) == 0 && l.settings == 0
}

// Snapshot copies the current log.
func (l *ChangeLog) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		Changes:     models.NewChangeSet(),
		docSeq:      make(map[string]uint64, len(l.docs)),
		tagSeq:      make(map[string]uint64, len(l.tags)),
		settingsSeq: l.settings,
	}
	for id, e := range l.docs {
		s.Changes.Documents[id] = e.change
		s.docSeq[id] = e.seq
	}
	for id, e := range l.tags {
		s.Changes.Tags[id] = e.change
		s.tagSeq[id] = e.seq
	}
	s.Changes.Settings = l.settings != 0
	s.Changes = s.Changes.Clone()
	return s
}

// Clear removes the entries captured by s. Entries registered or replaced
// after s was taken stay in the log.
func (l *ChangeLog) Clear(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, seq := range s.docSeq {
		if e, ok := l.docs[id]; ok && e.seq == seq {
			delete(l.docs, id)
		}
	}
	for id, seq := range s.tagSeq {
		if e, ok := l.tags[id]; ok && e.seq == seq {
			delete(l.tags, id)
		}
	}
	if s.settingsSeq != 0 && l.settings == s.settingsSeq {
		l.settings = 0
	}
}

// Reset empties the log.
func (l *ChangeLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = map[string]docEntry{}
	l.tags = map[string]tagEntry{}
	l.settings = 0
}
