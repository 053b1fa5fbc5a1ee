package storage

import (
	"encoding/json"
	"time"
)

// Notice is the persisted view of a scored procurement notice.
type Notice struct {
	ID                  string
	Title               string
	Summary             string
	Description         string
	ProcurementCategory string
	ProcurementType     string
	Agency              string
	Status              string
	Deadline            *time.Time
	PublishDate         *time.Time
	BudgetMin           *float64
	BudgetMax           *float64
	Currency            string
	Raw                 json.RawMessage
	FitScore            int
}

// Document is a child row of a notice.
type Document struct {
	URL  string
	Name string
	Type string
}

// UNSPSC is a hierarchical classification code attached to a notice.
type UNSPSC struct {
	Code        string
	Description string
}

// Country is a geography entry attached to a notice.
type Country struct {
	Code string
	Name string
}

// Children groups the owned child collections of one notice.
type Children struct {
	Documents []Document
	UNSPSC    []UNSPSC
	Countries []Country
}

// StoredNotice is a notice together with its child collections, as read
// back or written by the repository.
type StoredNotice struct {
	Notice
	Children
}
