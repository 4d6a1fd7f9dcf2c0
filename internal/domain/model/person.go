// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Field length limits for person records.
const (
	maxNameLength = 50
	stateLength   = 2
	zipCodeLength = 5
)

// Validation messages, one per rule.
const (
	MsgFirstName     = "First name is required with maximum length of 50"
	MsgLastName      = "Last name is required with maximum length of 50"
	MsgEmailAddress  = "Email address is required with maximum length of 50"
	MsgStreetAddress = "Street address is required with maximum length of 50"
	MsgCity          = "City is required with maximum length of 50"
	MsgState         = "State is required with length 2"
	MsgZipCode       = "Zip code is required with length 5"
)

// Person is one row of the person table.
type Person struct {
	PersonID      int64  `json:"personId"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	EmailAddress  string `json:"emailAddress"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
}

// Normalize trims surrounding whitespace from every text field.
func (p *Person) Normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.EmailAddress = strings.TrimSpace(p.EmailAddress)
	p.StreetAddress = strings.TrimSpace(p.StreetAddress)
	p.City = strings.TrimSpace(p.City)
	p.State = strings.TrimSpace(p.State)
	p.ZipCode = strings.TrimSpace(p.ZipCode)
}

// Validate returns the sorted messages of every violated rule.
// The slice is empty, never nil, for a valid record.
func (p *Person) Validate() []string {
	errs := make([]string, 0)
	if !between(p.FirstName, 1, maxNameLength) {
		errs = append(errs, MsgFirstName)
	}
	if !between(p.LastName, 1, maxNameLength) {
		errs = append(errs, MsgLastName)
	}
	if !between(p.EmailAddress, 1, maxNameLength) {
		errs = append(errs, MsgEmailAddress)
	}
	if !between(p.StreetAddress, 1, maxNameLength) {
		errs = append(errs, MsgStreetAddress)
	}
	if !between(p.City, 1, maxNameLength) {
		errs = append(errs, MsgCity)
	}
	if !between(p.State, stateLength, stateLength) {
		errs = append(errs, MsgState)
	}
	if !between(p.ZipCode, zipCodeLength, zipCodeLength) {
		errs = append(errs, MsgZipCode)
	}
	sort.Strings(errs)
	return errs
}

// between counts characters, not bytes.
func between(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}

// ValidationError carries the messages returned by Validate.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}
