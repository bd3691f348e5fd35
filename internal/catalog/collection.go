// internal/catalog/collection.go
package catalog

import (
	"strings"

	"libraripro/internal/apperr"
	"libraripro/internal/store"
)

// Collection is the library_books namespace loaded into a store transaction.
type Collection struct {
	tx    store.Tx
	books []Book
	dirty bool
}

func OpenCollection(tx store.Tx) (*Collection, error) {
	c := &Collection{tx: tx}
	if err := tx.Load(store.Books, &c.books); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) Book(id string) (Book, bool) {
	for _, b := range c.books {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

// PutBook replaces the stored record with the same id.
func (c *Collection) PutBook(book Book) error {
	for i := range c.books {
		if c.books[i].ID == book.ID {
			c.books[i] = book
			c.dirty = true
			return nil
		}
	}
	return apperr.NotFound("book", book.ID)
}

func (c *Collection) Insert(book Book) {
	c.books = append(c.books, book)
	c.dirty = true
}

func (c *Collection) Delete(id string) bool {
	for i := range c.books {
		if c.books[i].ID == id {
			c.books = append(c.books[:i], c.books[i+1:]...)
			c.dirty = true
			return true
		}
	}
	return false
}

// All returns a copy of the books in stored order.
func (c *Collection) All() []Book {
	return append([]Book(nil), c.books...)
}

func (c *Collection) IDs() []string {
	out := make([]string, 0, len(c.books))
	for _, b := range c.books {
		out = append(out, b.ID)
	}
	return out
}

// Replace swaps the whole collection, as a bulk import does.
func (c *Collection) Replace(books []Book) {
	c.books = append([]Book(nil), books...)
	c.dirty = true
}

// Flush saves the namespace if anything changed.
func (c *Collection) Flush() error {
	if !c.dirty {
		return nil
	}
	if c.books == nil {
		c.books = []Book{}
	}
	if err := c.tx.Save(store.Books, c.books); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Matches reports whether book satisfies f.
func (f Filter) Matches(book Book) bool {
	if f.Category != "" && book.Category != f.Category {
		return false
	}
	if f.Status != "" && book.Status != f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(book.Title), q) ||
			strings.Contains(strings.ToLower(book.Author), q) ||
			strings.Contains(strings.ToLower(book.ISBN), q)
	}
	return true
}
