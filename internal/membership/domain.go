// internal/membership/domain.go
package membership

import (
	"time"

	"libraripro/internal/calendar"
)

type MemberType string

const (
	TypeStudent MemberType = "Student"
	TypeFaculty MemberType = "Faculty"
	TypeStaff   MemberType = "Staff"
	TypePublic  MemberType = "Public"
	TypeAdmin   MemberType = "Admin"
)

type MemberStatus string

const (
	StatusActive   MemberStatus = "Active"
	StatusInactive MemberStatus = "Inactive"
)

// Member represents a library member who can borrow books.
type Member struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Email    string        `json:"email" yaml:"email"`
	Phone    string        `json:"phone,omitempty" yaml:"phone,omitempty"`
	Type     MemberType    `json:"type" yaml:"type"`
	Status   MemberStatus  `json:"status" yaml:"status"`
	Address  string        `json:"address,omitempty" yaml:"address,omitempty"`
	JoinDate calendar.Date `json:"joinDate" yaml:"joinDate"`
}

// MemberInput carries the editable fields of a member.
type MemberInput struct {
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Phone   string       `json:"phone"`
	Type    MemberType   `json:"type"`
	Status  MemberStatus `json:"status"`
	Address string       `json:"address"`
}

// Filter narrows ListMembers. Empty fields match everything.
type Filter struct {
	Query  string
	Type   MemberType
	Status MemberStatus
}

// User is a staff account created through registration.
type User struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Role      string    `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

const RoleLibrarian = "Librarian"

// userRecord is how a User is persisted in library_users.
type userRecord struct {
	User
	Credentials credentials `json:"credentials"`
}

// Login is the payload of Authenticate.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the payload of RegisterUser.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
