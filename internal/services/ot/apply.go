package ot

import (
	"errors"
	"fmt"

	"collab-engine/internal/models"
)

// ErrInvalidOperation marks a bounds or shape violation. Operations
// rejected with it are never retried automatically.
var ErrInvalidOperation = errors.New("invalid operation")

// Validate checks op against a document of contentLength runes.
// Inserts may target [0, contentLength]; removal ranges must lie within
// the document; an empty Delete is malformed.
func Validate(op models.Operation, contentLength int) error {
	switch e := op.Edit.(type) {
	case models.Insert:
		if e.Position < 0 || e.Position > contentLength {
			return fmt.Errorf("%w: insert position %d outside [0, %d]", ErrInvalidOperation, e.Position, contentLength)
		}
		if e.Content == "" {
			return fmt.Errorf("%w: insert content cannot be empty", ErrInvalidOperation)
		}

	case models.Delete:
		if e.Length <= 0 {
			return fmt.Errorf("%w: delete length must be greater than 0", ErrInvalidOperation)
		}
		if e.Position < 0 || e.Position+e.Length > contentLength {
			return fmt.Errorf("%w: delete range [%d, %d) exceeds content length %d",
				ErrInvalidOperation, e.Position, e.Position+e.Length, contentLength)
		}

	case models.Replace:
		if e.Length < 0 {
			return fmt.Errorf("%w: replace length cannot be negative", ErrInvalidOperation)
		}
		if e.Length == 0 && e.NewContent == "" {
			return fmt.Errorf("%w: replace must have non-empty old or new content", ErrInvalidOperation)
		}
		if e.Position < 0 || e.Position+e.Length > contentLength {
			return fmt.Errorf("%w: replace range [%d, %d) exceeds content length %d",
				ErrInvalidOperation, e.Position, e.Position+e.Length, contentLength)
		}

	case nil:
		return fmt.Errorf("%w: operation has no edit", ErrInvalidOperation)

	default:
		panic(fmt.Sprintf("ot: unknown edit %T", e))
	}

	return nil
}

// Apply returns content with op's edit applied. Unlike Validate it accepts
// the zero-length edits transformation can produce.
func Apply(content string, op models.Operation) (string, error) {
	if op.Edit == nil {
		return "", fmt.Errorf("%w: operation has no edit", ErrInvalidOperation)
	}

	s := toSpan(op.Edit)
	r := []rune(content)
	if s.pos < 0 || s.del < 0 || s.end() > len(r) {
		return "", fmt.Errorf("%w: range [%d, %d) outside document of length %d",
			ErrInvalidOperation, s.pos, s.end(), len(r))
	}

	out := make([]rune, 0, len(r)-s.del+s.insLen)
	out = append(out, r[:s.pos]...)
	out = append(out, []rune(s.ins)...)
	out = append(out, r[s.end():]...)
	return string(out), nil
}

// Materialize fills a Replace's OldContent with the text it removes from
// content. Other edits are returned unchanged.
func Materialize(content string, op models.Operation) models.Operation {
	e, ok := op.Edit.(models.Replace)
	if !ok {
		return op
	}
	r := []rune(content)
	if e.Position < 0 || e.Length < 0 || e.Position+e.Length > len(r) {
		return op
	}
	e.OldContent = string(r[e.Position : e.Position+e.Length])
	return op.WithEdit(e)
}

// IsNoop reports whether op leaves every document unchanged.
func IsNoop(op models.Operation) bool {
	if op.Edit == nil {
		return true
	}
	s := toSpan(op.Edit)
	return s.del == 0 && s.ins == ""
}
