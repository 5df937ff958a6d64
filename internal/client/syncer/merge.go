package syncer

import "github.com/dmitrijs2005/dockeeper/internal/client/models"

// MergeResult is the merged snapshot and how many entities the merge took
// from the local side or the change log.
type MergeResult struct {
	Metadata         *models.CloudMetadata
	DocumentsChanged int
	TagsChanged      int
}

// Merge reconciles the remote snapshot with the local one using
// last-writer-wins on document upload dates. Pending changes override the
// recency rule. The inputs are never modified.
//
// Without a local snapshot the remote one is returned as is. Equal upload
// dates keep the remote copy. Tags merge additively. Local settings replace
// remote settings only when the change log marks them dirty.
func Merge(remote, local *models.CloudMetadata, changes models.ChangeSet) MergeResult {
	result := remote.Clone()
	if result == nil {
		result = models.NewCloudMetadata()
	}
	result.Normalize()

	out := MergeResult{Metadata: result}
	if local == nil {
		return out
	}

	for id, ld := range local.Documents {
		if ch, ok := changes.Documents[id]; ok {
			if applyDocumentChange(result, id, ch) {
				out.DocumentsChanged++
			}
			continue
		}
		rd, inRemote := result.Documents[id]
		if !inRemote || ld.NewerThan(rd) {
			result.Documents[id] = ld.Clone()
			out.DocumentsChanged++
		}
	}

	// Pending changes of documents the local snapshot no longer holds, such as
	// a document deleted locally before its last sync.
	for id, ch := range changes.Documents {
		if _, inLocal := local.Documents[id]; inLocal {
			continue
		}
		if _, inResult := result.Documents[id]; !inResult && ch.Action == models.ActionDelete {
			continue
		}
		if applyDocumentChange(result, id, ch) {
			out.DocumentsChanged++
		}
	}

	seen := make(map[string]bool, len(result.Tags))
	for _, t := range result.Tags {
		seen[t.ID] = true
	}
	for _, t := range local.Tags {
		if seen[t.ID] {
			continue
		}
		result.Tags = append(result.Tags, t)
		seen[t.ID] = true
		out.TagsChanged++
	}

	if changes.Settings {
		result.Settings = local.Settings.Clone()
		result.Normalize()
	}

	return out
}

// applyDocumentChange applies one pending change and reports whether it
// took effect. Add or update entries without a payload are ignored.
func applyDocumentChange(result *models.CloudMetadata, id string, ch models.DocumentChange) bool {
	switch ch.Action {
	case models.ActionDelete:
		delete(result.Documents, id)
		return true
	case models.ActionAdd, models.ActionUpdate:
		if ch.Data == nil {
			return false
		}
		d := ch.Data.Clone()
		d.ID = id
		result.Documents[id] = d
		return true
	}
	return false
}
