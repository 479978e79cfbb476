package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrMalformedOperation is returned when an operation's wire form does not
// carry exactly the field group its kind requires.
var ErrMalformedOperation = errors.New("malformed operation")

// EditKind names the variant of an Edit on the wire.
type EditKind string

const (
	KindInsert  EditKind = "insert"
	KindDelete  EditKind = "delete"
	KindReplace EditKind = "replace"
)

// Edit is the closed set of document mutations: Insert, Delete and Replace.
// The unexported method keeps other packages from adding variants, so every
// type switch over Edit only has to handle these three.
type Edit interface {
	Kind() EditKind
	edit()
}

// Insert places Content before the rune at Position.
type Insert struct {
	Position int
	Content  string
}

// Delete removes Length runes starting at Position.
type Delete struct {
	Position int
	Length   int
}

// Replace removes Length runes at Position and inserts NewContent there.
// OldContent is the text being removed when it is known; Length is what
// transformation and application use.
type Replace struct {
	Position   int
	Length     int
	OldContent string
	NewContent string
}

func (Insert) Kind() EditKind  { return KindInsert }
func (Delete) Kind() EditKind  { return KindDelete }
func (Replace) Kind() EditKind { return KindReplace }

func (Insert) edit()  {}
func (Delete) edit()  {}
func (Replace) edit() {}

// NewReplace builds a Replace whose length is taken from oldContent.
func NewReplace(position int, oldContent, newContent string) Replace {
	return Replace{
		Position:   position,
		Length:     utf8.RuneCountInString(oldContent),
		OldContent: oldContent,
		NewContent: newContent,
	}
}

// Operation is one participant's edit, tagged with the version it was
// computed against. AppliedVersion is zero until the registry logs it.
type Operation struct {
	ID             string
	Author         string
	BaseVersion    uint64
	AppliedVersion uint64
	Timestamp      time.Time
	Edit           Edit
}

// Kind returns the kind of the carried edit, or "" when there is none.
func (op Operation) Kind() EditKind {
	if op.Edit == nil {
		return ""
	}
	return op.Edit.Kind()
}

// WithEdit returns a copy of op carrying e.
func (op Operation) WithEdit(e Edit) Operation {
	op.Edit = e
	return op
}

// operationWire is the JSON shape shared with clients.
type operationWire struct {
	ID             string     `json:"id"`
	BaseVersion    uint64     `json:"base_version"`
	AppliedVersion uint64     `json:"applied_version,omitempty"`
	Author         string     `json:"author"`
	Kind           EditKind   `json:"kind"`
	Position       int        `json:"position"`
	Length         *int       `json:"length,omitempty"`
	Content        *string    `json:"content,omitempty"`
	OldContent     *string    `json:"old_content,omitempty"`
	NewContent     *string    `json:"new_content,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON encodes op in its wire shape.
func (op Operation) MarshalJSON() ([]byte, error) {
	w := operationWire{
		ID:             op.ID,
		BaseVersion:    op.BaseVersion,
		AppliedVersion: op.AppliedVersion,
		Author:         op.Author,
	}
	if !op.Timestamp.IsZero() {
		ts := op.Timestamp
		w.Timestamp = &ts
	}

	switch e := op.Edit.(type) {
	case Insert:
		w.Kind = KindInsert
		w.Position = e.Position
		w.Content = &e.Content
	case Delete:
		w.Kind = KindDelete
		w.Position = e.Position
		w.Length = &e.Length
	case Replace:
		w.Kind = KindReplace
		w.Position = e.Position
		w.OldContent = &e.OldContent
		w.NewContent = &e.NewContent
	case nil:
		return nil, fmt.Errorf("%w: operation %q has no edit", ErrMalformedOperation, op.ID)
	default:
		panic(fmt.Sprintf("models: unknown edit %T", e))
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape, rejecting unknown kinds and field
// groups that do not belong to the declared kind.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w operationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}

	var e Edit
	switch w.Kind {
	case KindInsert:
		if w.Content == nil || w.Length != nil || w.OldContent != nil || w.NewContent != nil {
			return fmt.Errorf("%w: insert takes only content", ErrMalformedOperation)
		}
		e = Insert{Position: w.Position, Content: *w.Content}
	case KindDelete:
		if w.Length == nil || w.Content != nil || w.OldContent != nil || w.NewContent != nil {
			return fmt.Errorf("%w: delete takes only length", ErrMalformedOperation)
		}
		e = Delete{Position: w.Position, Length: *w.Length}
	case KindReplace:
		if w.Content != nil || w.Length != nil || (w.OldContent == nil && w.NewContent == nil) {
			return fmt.Errorf("%w: replace takes only old_content and new_content", ErrMalformedOperation)
		}
		var oldContent, newContent string
		if w.OldContent != nil {
			oldContent = *w.OldContent
		}
		if w.NewContent != nil {
			newContent = *w.NewContent
		}
		e = NewReplace(w.Position, oldContent, newContent)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedOperation, w.Kind)
	}

	*op = Operation{
		ID:             w.ID,
		Author:         w.Author,
		BaseVersion:    w.BaseVersion,
		AppliedVersion: w.AppliedVersion,
		Edit:           e,
	}
	if w.Timestamp != nil {
		op.Timestamp = *w.Timestamp
	}
	return nil
}
