// internal/catalog/domain.go
package catalog

import (
	"libraripro/internal/calendar"
)

// Status is the circulation state of a book. Only the circulation ledger changes it.
type Status string

const (
	StatusAvailable Status = "Available"
	StatusIssued    Status = "Issued"
)

// Book represents one title in the catalog.
type Book struct {
	ID          string        `json:"id" yaml:"id"`
	Title       string        `json:"title" yaml:"title"`
	Author      string        `json:"author" yaml:"author"`
	ISBN        string        `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Category    string        `json:"category" yaml:"category"`
	Publisher   string        `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Year        int           `json:"year,omitempty" yaml:"year,omitempty"`
	Status      Status        `json:"status" yaml:"status"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	AddedDate   calendar.Date `json:"addedDate" yaml:"addedDate"`
}

// BookInput carries the catalog-owned fields of a book for create and edit.
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Category    string `json:"category"`
	Publisher   string `json:"publisher"`
	Year        int    `json:"year"`
	Description string `json:"description"`
}

// Filter narrows ListBooks. Empty fields match everything.
type Filter struct {
	Query    string
	Category string
	Status   Status
}
