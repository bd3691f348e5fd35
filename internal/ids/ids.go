// internal/ids/ids.go
package ids

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"libraripro/internal/store"
)

const (
	BookPrefix        = "B"
	MemberPrefix      = "M"
	TransactionPrefix = "T"
	UserPrefix        = "U"

	width = 3
)

var ErrCollision = errors.New("generated id already exists")

// Next returns prefix followed by one more than the largest numeric suffix in
// existing, zero-padded to three digits (B001, B002, ...). Ids in existing that
// do not carry prefix or a numeric suffix are ignored for the counter but still
// take part in the uniqueness check.
func Next(prefix string, existing []string) (string, error) {
	return after(prefix, existing, 0)
}

// Allocate is Next that never goes back: the highest number handed out per
// prefix is kept in the Sequences namespace, so ids of removed records are
// not given to new ones while old transactions still reference them.
func Allocate(tx store.Tx, prefix string, existing []string) (string, error) {
	seq := make(map[string]int)
	if err := tx.Load(store.Sequences, &seq); err != nil {
		return "", fmt.Errorf("failed to load id sequences: %w", err)
	}

	id, err := after(prefix, existing, seq[prefix])
	if err != nil {
		return "", err
	}
	seq[prefix], _ = suffix(prefix, id)
	if err := tx.Save(store.Sequences, seq); err != nil {
		return "", fmt.Errorf("failed to save id sequences: %w", err)
	}
	return id, nil
}

func after(prefix string, existing []string, floor int) (string, error) {
	taken := make(map[string]struct{}, len(existing))
	highest := floor
	for _, id := range existing {
		taken[id] = struct{}{}
		if n, ok := suffix(prefix, id); ok && n > highest {
			highest = n
		}
	}

	candidate := fmt.Sprintf("%s%0*d", prefix, width, highest+1)
	if _, dup := taken[candidate]; dup {
		return "", fmt.Errorf("%w: %s", ErrCollision, candidate)
	}
	return candidate, nil
}

// Valid reports whether id is prefix followed by at least one digit.
func Valid(prefix, id string) bool {
	_, ok := suffix(prefix, id)
	return ok
}

func suffix(prefix, id string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	digits := id[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
