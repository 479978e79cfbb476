package ot

import (
	"fmt"
	"unicode/utf8"

	"collab-engine/internal/models"
)

/*
LEARNING: ONE SHAPE FOR THREE EDITS

Insert, Delete and Replace are all "remove del runes at pos, then put ins
there". Transforming that single shape against itself covers every pair of
kinds, and Replace really is a Delete followed by an Insert at the same spot.

old holds the removed text when we know it. A Delete never knows it; a
Replace submitted by a client does, and transformation keeps it exact.
*/

type span struct {
	pos      int
	del      int
	ins      string
	insLen   int
	old      string
	oldKnown bool
}

func toSpan(e models.Edit) span {
	switch e := e.(type) {
	case models.Insert:
		return span{pos: e.Position, ins: e.Content, insLen: utf8.RuneCountInString(e.Content), oldKnown: true}
	case models.Delete:
		return span{pos: e.Position, del: e.Length}
	case models.Replace:
		return span{
			pos:      e.Position,
			del:      e.Length,
			ins:      e.NewContent,
			insLen:   utf8.RuneCountInString(e.NewContent),
			old:      e.OldContent,
			oldKnown: utf8.RuneCountInString(e.OldContent) == e.Length,
		}
	default:
		panic(fmt.Sprintf("ot: unknown edit %T", e))
	}
}

// toEdit turns a transformed span back into an edit, keeping the original
// kind whenever that kind can still express the result.
func toEdit(kind models.EditKind, s span) models.Edit {
	oldContent := ""
	if s.oldKnown {
		oldContent = s.old
	}

	switch kind {
	case models.KindInsert:
		if s.del == 0 {
			return models.Insert{Position: s.pos, Content: s.ins}
		}
	case models.KindDelete:
		if s.ins == "" {
			return models.Delete{Position: s.pos, Length: s.del}
		}
	case models.KindReplace:
	default:
		panic(fmt.Sprintf("ot: unknown edit kind %q", kind))
	}

	return models.Replace{Position: s.pos, Length: s.del, OldContent: oldContent, NewContent: s.ins}
}

func (s span) end() int {
	return s.pos + s.del
}

// substr returns runes [from, to) of str, clamped to its bounds.
func substr(str string, from, to int) string {
	r := []rune(str)
	if from < 0 {
		from = 0
	}
	if to > len(r) {
		to = len(r)
	}
	if from >= to {
		return ""
	}
	return string(r[from:to])
}
