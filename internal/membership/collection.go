// internal/membership/collection.go
package membership

import (
	"strings"

	"libraripro/internal/apperr"
	"libraripro/internal/store"
)

// Collection is the library_members namespace loaded into a store transaction.
type Collection struct {
	tx      store.Tx
	members []Member
	dirty   bool
}

func OpenCollection(tx store.Tx) (*Collection, error) {
	c := &Collection{tx: tx}
	if err := tx.Load(store.Members, &c.members); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) Member(id string) (Member, bool) {
	for _, m := range c.members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

func (c *Collection) PutMember(member Member) error {
	for i := range c.members {
		if c.members[i].ID == member.ID {
			c.members[i] = member
			c.dirty = true
			return nil
		}
	}
	return apperr.NotFound("member", member.ID)
}

func (c *Collection) Insert(member Member) {
	c.members = append(c.members, member)
	c.dirty = true
}

func (c *Collection) Delete(id string) bool {
	for i := range c.members {
		if c.members[i].ID == id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			c.dirty = true
			return true
		}
	}
	return false
}

func (c *Collection) All() []Member {
	return append([]Member(nil), c.members...)
}

func (c *Collection) IDs() []string {
	out := make([]string, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.ID)
	}
	return out
}

// EmailTaken reports whether another member already uses email.
func (c *Collection) EmailTaken(email, exceptID string) bool {
	for _, m := range c.members {
		if m.ID != exceptID && strings.EqualFold(m.Email, email) {
			return true
		}
	}
	return false
}

func (c *Collection) Replace(members []Member) {
	c.members = append([]Member(nil), members...)
	c.dirty = true
}

func (c *Collection) Flush() error {
	if !c.dirty {
		return nil
	}
	if c.members == nil {
		c.members = []Member{}
	}
	if err := c.tx.Save(store.Members, c.members); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

func (f Filter) Matches(m Member) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Email), q) ||
			strings.Contains(strings.ToLower(m.Phone), q)
	}
	return true
}
