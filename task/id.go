package task

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// pendingPrefix marks a pending ID in its text form. It only exists at the
// serialization boundary; code compares IDs by value, never by prefix.
const pendingPrefix = "local:"

// ID identifies a record. It holds either a pending token, generated on the
// device before the remote store has accepted the record, or the identifier
// the remote store assigned. The zero ID holds neither.
type ID struct {
	token  string
	remote string
}

// NewPendingID returns a fresh pending ID.
func NewPendingID() ID {
	return ID{token: uuid.NewString()}
}

// PendingID wraps an existing pending token.
func PendingID(token string) ID {
	return ID{token: token}
}

// RemoteID wraps an identifier assigned by the remote store.
func RemoteID(id string) ID {
	return ID{remote: id}
}

// IsPending reports whether the ID has not been confirmed by the remote store.
func (id ID) IsPending() bool { return id.token != "" }

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id.token == "" && id.remote == "" }

// Remote returns the remote identifier. ok is false for pending and zero IDs,
// which must never be sent to the remote store.
func (id ID) Remote() (remote string, ok bool) {
	return id.remote, id.remote != ""
}

// Token returns the pending token, or "" for confirmed IDs.
func (id ID) Token() string { return id.token }

// String returns the text form: the remote id, or "local:<token>".
func (id ID) String() string {
	if id.token != "" {
		return pendingPrefix + id.token
	}
	return id.remote
}

// ParseID is the inverse of String.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, nil
	}
	if tok, ok := strings.CutPrefix(s, pendingPrefix); ok {
		if tok == "" {
			return ID{}, fmt.Errorf("parse id %q: empty pending token", s)
		}
		return ID{token: tok}, nil
	}
	return ID{remote: s}, nil
}

// MarshalJSON encodes the ID as its text form; the zero ID encodes as null.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the text form produced by MarshalJSON.
func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
