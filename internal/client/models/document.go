// Package models defines client-side data models used by the DocKeeper CLI.
package models

import "time"

// DocumentMetadata describes one uploaded document. Field values other than
// ID are produced by the upload and recognition pipeline.
type DocumentMetadata struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Path is the document location in the storage backend.
	Path string `json:"path"`

	Name string `json:"name"`

	// Tags holds Tag.ID references; order is irrelevant.
	Tags []string `json:"tags"`

	// OCR is the recognized text, possibly empty.
	OCR string `json:"ocr"`

	// Detections lists detected object class labels.
	Detections []string `json:"detections"`

	// UploadDate is an ISO-8601 timestamp used for recency comparisons and
	// cache ordering.
	UploadDate string `json:"uploadDate"`

	// Preview is an optional inline thumbnail reference.
	Preview string `json:"preview,omitempty"`
}

// Tag is a user defined label. Identity is ID.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ParseUploadDate parses an RFC 3339 timestamp or a plain YYYY-MM-DD date.
// Unparsable values yield the zero time.
func ParseUploadDate(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t
	}
	return time.Time{}
}

// NewerThan reports whether d was uploaded strictly after other.
func (d DocumentMetadata) NewerThan(other DocumentMetadata) bool {
	return ParseUploadDate(d.UploadDate).After(ParseUploadDate(other.UploadDate))
}

// HasTag reports whether the document references the tag id.
func (d DocumentMetadata) HasTag(id string) bool {
	for _, t := range d.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with d.
func (d DocumentMetadata) Clone() DocumentMetadata {
	c := d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	if d.Detections != nil {
		c.Detections = append([]string(nil), d.Detections...)
	}
	return c
}
