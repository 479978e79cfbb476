package ot

import (
	"cmp"
	"slices"

	"collab-engine/internal/models"
)

/*
LEARNING: OPERATIONAL TRANSFORMATION

Two participants edit the same version of a document. The server applies
one edit (b) first; the other (a) must be rewritten into a' so that applying
b then a' ends in the same document as applying a then b'. That is the
"diamond" every OT system has to close.

Rules, with a and b computed against the same base:
  - Disjoint ranges: a only shifts by b's net length change when b is left of it.
  - Touching or overlapping ranges: everything either side removes is gone,
    and both inserted texts end up at the front of the merged range. The edit
    that starts first keeps its text first; equal starts are ordered by
    operation ID (smaller ID first), which is what makes ties deterministic.
  - An insert inside a removed range is clamped to that range's start.
*/

// Transform rewrites a so that it has the same effect when applied after b.
// Both must have been computed against the same document.
func Transform(a, b models.Operation) models.Operation {
	as, bs := toSpan(a.Edit), toSpan(b.Edit)
	out := transformSpan(as, bs, precedes(a, b, as, bs))
	return a.WithEdit(toEdit(a.Kind(), out))
}

// TransformAll transforms op against every concurrent operation in
// increasing applied version, yielding op in terms of the latest document.
func TransformAll(op models.Operation, concurrent []models.Operation) models.Operation {
	ordered := concurrent
	if !slices.IsSortedFunc(ordered, byAppliedVersion) {
		ordered = slices.Clone(concurrent)
		slices.SortStableFunc(ordered, byAppliedVersion)
	}

	for _, c := range ordered {
		op = Transform(op, c)
	}
	return op
}

func byAppliedVersion(a, b models.Operation) int {
	return cmp.Compare(a.AppliedVersion, b.AppliedVersion)
}

// precedes reports whether a's inserted text goes before b's when the two
// edits meet. It is antisymmetric for any two distinct operations.
func precedes(a, b models.Operation, as, bs span) bool {
	if as.pos != bs.pos {
		return as.pos < bs.pos
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	return as.ins <= bs.ins
}

func transformSpan(a, b span, aFirst bool) span {
	ae, be := a.end(), b.end()

	switch {
	case ae < b.pos:
		return a
	case be < a.pos:
		a.pos += b.insLen - b.del
		return a
	}

	hi := max(ae, be)
	out := span{ins: a.ins, insLen: a.insLen, oldKnown: a.oldKnown}

	if !aFirst {
		// b's text leads the merged range; a removes what is left of its
		// range past b's.
		out.pos = b.pos + b.insLen
		out.del = hi - be
		out.old = substr(a.old, be-a.pos, a.del)
		return out
	}

	out.pos = a.pos
	if b.insLen == 0 || ae <= be {
		out.del = (b.pos - a.pos) + (hi - be)
		out.old = substr(a.old, 0, b.pos-a.pos) + substr(a.old, be-a.pos, a.del)
		return out
	}

	// b put text strictly inside a's range. a still removes the text around
	// it, so it removes b's text too and writes it back after its own.
	out.del = (b.pos - a.pos) + b.insLen + (ae - be)
	out.ins = a.ins + b.ins
	out.insLen = a.insLen + b.insLen
	out.old = substr(a.old, 0, b.pos-a.pos) + b.ins + substr(a.old, be-a.pos, a.del)
	return out
}
