package models

import "time"

// Document is a validated PDF held in memory for the lifetime of a
// conversation. It is immutable once loaded; loading a new document
// replaces it wholesale.
type Document struct {
	Name      string
	Size      int64
	PageCount int
	SHA256    string
	Data      []byte
	LoadedAt  time.Time
}

// PageExtract is a single page of a Document, re-packaged as a
// standalone one-page PDF.
type PageExtract struct {
	Page int
	Data []byte
}
