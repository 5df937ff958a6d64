package models

// ChangeAction is the kind of a pending offline mutation.
type ChangeAction string

const (
	ActionAdd    ChangeAction = "add"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Valid reports whether a is one of the known actions.
func (a ChangeAction) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// DocumentChange is a pending mutation of one document. Delete entries carry
// no payload.
type DocumentChange struct {
	Action ChangeAction
	Data   *DocumentMetadata
}

// TagChange is a pending mutation of one tag.
type TagChange struct {
	Action ChangeAction
	Data   *Tag
}

// ChangeSet is the offline change log: documents and tags keyed by id plus
// a single settings-dirty flag.
type ChangeSet struct {
	Documents map[string]DocumentChange
	Tags      map[string]TagChange
	Settings  bool
}

// NewChangeSet returns an empty change set.
func NewChangeSet() ChangeSet {
	return ChangeSet{
		Documents: map[string]DocumentChange{},
		Tags:      map[string]TagChange{},
	}
}

// IsEmpty reports whether no part of the log holds a change.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Documents) == 0 && len(c.Tags) == 0 && !c.Settings
}

// Clone copies the log including payloads.
func (c ChangeSet) Clone() ChangeSet {
	out := ChangeSet{
		Documents: make(map[string]DocumentChange, len(c.Documents)),
		Tags:      make(map[string]TagChange, len(c.Tags)),
		Settings:  c.Settings,
	}
	for id, ch := range c.Documents {
		if ch.Data != nil {
			d := ch.Data.Clone()
			ch.Data = &d
		}
		out.Documents[id] = ch
	}
	for id, ch := range c.Tags {
		if ch.Data != nil {
			t := *ch.Data
			ch.Data = &t
		}
		out.Tags[id] = ch
	}
	return out
}
