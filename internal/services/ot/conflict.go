package ot

import (
	"cmp"
	"fmt"
	"slices"

	"collab-engine/internal/models"
)

// Classification names why a set of concurrent edits was flagged.
type Classification string

const (
	// Two edits remove some of the same text.
	ClassRemovalOverlap Classification = "removal_overlap"
	// An insert landed strictly inside text another edit removed.
	ClassInsertIntoRemoved Classification = "insert_into_removed_range"
	// A Replace touches another edit's span.
	ClassReplaceOverlap Classification = "replace_overlap"
	// The incoming edit was computed too many versions ago.
	ClassCausalLag Classification = "causal_lag"
)

// Conflict describes an incoming operation and the logged operations it
// semantically collides with. A Conflict is a warning: the transformed
// operation is still structurally valid.
type Conflict struct {
	Classification Classification
	Incoming       models.Operation
	Conflicting    []models.Operation
	BaseVersion    uint64
	CurrentVersion uint64
}

func (c *Conflict) String() string {
	return fmt.Sprintf("%s: operation %s (base %d) against %d concurrent operation(s) at version %d",
		c.Classification, c.Incoming.ID, c.BaseVersion, len(c.Conflicting), c.CurrentVersion)
}

// DetectConflicts checks incoming against the operations logged since its
// base version. Each concurrent operation is compared with incoming rebased
// onto the document that operation was applied to, so ranges are compared
// in the same coordinates. When lagThreshold is non-zero and incoming is
// more than lagThreshold versions behind currentVersion, a causal-lag
// conflict is reported if no overlap was found.
func DetectConflicts(incoming models.Operation, concurrent []models.Operation, currentVersion, lagThreshold uint64) *Conflict {
	var (
		class       Classification
		conflicting []models.Operation
	)

	cur := incoming
	for _, c := range concurrent {
		if cl, ok := overlap(cur, c); ok {
			if class == "" || cl == ClassReplaceOverlap {
				class = cl
			}
			conflicting = append(conflicting, c)
		}
		cur = Transform(cur, c)
	}

	if class == "" && lagThreshold > 0 && currentVersion > incoming.BaseVersion &&
		currentVersion-incoming.BaseVersion > lagThreshold {
		class = ClassCausalLag
		conflicting = slices.Clone(concurrent)
	}

	if class == "" {
		return nil
	}

	return &Conflict{
		Classification: class,
		Incoming:       incoming,
		Conflicting:    conflicting,
		BaseVersion:    incoming.BaseVersion,
		CurrentVersion: currentVersion,
	}
}

// overlap reports whether two co-based operations collide. Two pure inserts
// never collide; an insert collides with a removal only when it falls
// strictly inside the removed range.
func overlap(a, b models.Operation) (Classification, bool) {
	as, bs := toSpan(a.Edit), toSpan(b.Edit)

	var hit bool
	switch {
	case as.del == 0 && bs.del == 0:
		return "", false
	case as.del > 0 && bs.del > 0:
		hit = max(as.pos, bs.pos) < min(as.end(), bs.end())
	case as.del == 0:
		hit = bs.pos < as.pos && as.pos < bs.end()
	default:
		hit = as.pos < bs.pos && bs.pos < as.end()
	}
	if !hit {
		return "", false
	}

	switch {
	case a.Kind() == models.KindReplace || b.Kind() == models.KindReplace:
		return ClassReplaceOverlap, true
	case as.del > 0 && bs.del > 0:
		return ClassRemovalOverlap, true
	default:
		return ClassInsertIntoRemoved, true
	}
}

// ResolveConflicts merges operations that were all computed against
// original. They are applied in increasing version order (applied version
// when logged, base version otherwise, then ID), each transformed against
// every operation applied before it. The result does not depend on the
// order ops are passed in.
func ResolveConflicts(original string, ops []models.Operation) (string, error) {
	ordered := slices.Clone(ops)
	slices.SortStableFunc(ordered, func(a, b models.Operation) int {
		if c := cmp.Compare(versionKey(a), versionKey(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	content := original
	applied := make([]models.Operation, 0, len(ordered))
	for _, op := range ordered {
		rebased := op
		for _, prev := range applied {
			rebased = Transform(rebased, prev)
		}

		var err error
		if content, err = Apply(content, rebased); err != nil {
			return "", fmt.Errorf("resolve operation %s: %w", op.ID, err)
		}
		applied = append(applied, rebased)
	}

	return content, nil
}

func versionKey(op models.Operation) uint64 {
	if op.AppliedVersion != 0 {
		return op.AppliedVersion
	}
	return op.BaseVersion
}
