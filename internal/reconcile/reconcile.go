// Package reconcile merges records confirmed by a bulk save back into a
// client's local draft list.
//
// A draft and a saved record are the same annotation when they share the
// page and the top-left corner of their normalized box. The first saved
// record that matches wins and is not consumed, so two drafts drawn from the
// same corner on the same page may both pick up the same server identity.
// This is a known limitation of the matching key.
package reconcile

import "github.com/pbaille/fieldmap/internal/domain"

// Matches reports whether saved is the server copy of draft
func Matches(draft, saved domain.Annotation) bool {
	if draft.BBoxNorm == nil || saved.BBoxNorm == nil {
		return false
	}
	return saved.Page == draft.Page &&
		saved.BBoxNorm[0] == draft.BBoxNorm[0] &&
		saved.BBoxNorm[1] == draft.BBoxNorm[1]
}

// Merge returns a copy of local in which every unsaved draft that matches a
// saved record is replaced by that record. Entries are never dropped or
// reordered; drafts without a match stay as they are. The second result is
// the number of drafts that received server identity.
func Merge(local, saved []domain.Annotation) ([]domain.Annotation, int) {
	out := make([]domain.Annotation, len(local))
	copy(out, local)

	merged := 0
	for i, draft := range out {
		if !draft.IsDraft() {
			continue
		}
		for _, s := range saved {
			if Matches(draft, s) {
				out[i] = s
				merged++
				break
			}
		}
	}
	return out, merged
}
