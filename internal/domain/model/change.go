package model

import "time"

// ChangeKind names the mutation recorded by a Change.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change records one successful mutation of the person table.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	PersonID  int64      `json:"personId"`
	Person    Person     `json:"person"`
	RequestID string     `json:"requestId,omitempty"`
	At        time.Time  `json:"at"`
}
