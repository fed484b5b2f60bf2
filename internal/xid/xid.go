// Package xid issues prefixed identifiers such as "sale-0190f6e4-...".
package xid

import "github.com/google/uuid"

// New returns prefix + "-" + a time-ordered UUID. Random v4 is used if the
// v7 generator fails.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}
