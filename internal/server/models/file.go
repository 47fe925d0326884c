// Package models defines server-side data models persisted in the metadata store.
package models

import "time"

// LinkType is the sharing mode of a file.
type LinkType string

const (
	LinkNone    LinkType = ""
	LinkPublic  LinkType = "public"
	LinkOneTime LinkType = "one"
)

// Locator addresses stored ciphertext. Exactly one field is set, matching
// the backend the object was written to.
type Locator struct {
	FilePath  string
	ObjectKey string
}

// Key returns whichever address is populated.
func (l Locator) Key() string {
	if l.FilePath != "" {
		return l.FilePath
	}
	return l.ObjectKey
}

// Valid reports whether exactly one address is populated.
func (l Locator) Valid() bool {
	return (l.FilePath == "") != (l.ObjectKey == "")
}

// ShareState describes how a file is shared.
type ShareState struct {
	LinkType LinkType
	// Link is the capability token; empty when LinkType is LinkNone.
	Link string
	// Consumed is only meaningful for LinkOneTime.
	Consumed bool
}

// File is the durable record of one uploaded object.
type File struct {
	ID         string
	OwnerID    string
	ParentID   string
	ParentPath string
	Filename   string
	Size       int64
	UploadedAt time.Time

	// IV is generated once at upload and never changes.
	IV []byte

	// ThumbnailID is empty when no preview exists.
	ThumbnailID string
	IsVideo     bool

	Locator Locator
	Share   ShareState
}

// HasThumbnail is derived from ThumbnailID so the two never disagree.
func (f *File) HasThumbnail() bool {
	return f.ThumbnailID != ""
}

// Thumbnail is an encrypted preview stored as its own object.
type Thumbnail struct {
	ID        string
	OwnerID   string
	IV        []byte
	Size      int64
	Locator   Locator
	CreatedAt time.Time
}

// SortOrder selects list ordering.
type SortOrder string

const (
	SortDateDesc SortOrder = "date_desc"
	SortDateAsc  SortOrder = "date_asc"
	SortNameAsc  SortOrder = "alp_asc"
	SortNameDesc SortOrder = "alp_desc"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to newest first.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(s) {
	case SortDateAsc, SortNameAsc, SortNameDesc:
		return SortOrder(s)
	default:
		return SortDateDesc
	}
}

// ListOptions filters a file listing. An empty ParentID lists the root
// folder unless Search is set, in which case all folders are searched.
type ListOptions struct {
	ParentID string
	Search   string
	Sort     SortOrder
	Limit    int
	Offset   int
}
