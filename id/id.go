// Package id defines TypeID-based identity types for every entity the
// scheduler and the actors hand out.
//
// IDs are K-sortable (UUIDv7-based), globally unique, and URL-safe in the
// format "prefix_suffix". The prefix names the entity kind, so an event ID
// can never be passed where a guest ID is expected without failing to parse.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all entity types.
const (
	PrefixRun        Prefix = "wfrun"
	PrefixCheckpoint Prefix = "ckpt"
	PrefixCron       Prefix = "cron"
	PrefixWorker     Prefix = "wkr"
	PrefixEvent      Prefix = "evt"
	PrefixGuest      Prefix = "gst"
	PrefixEmail      Prefix = "eml"
	PrefixBreak      Prefix = "brk"
)

// ID wraps a TypeID. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. It panics if prefix is not
// a valid TypeID prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "evt_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// Aliases document intent at call sites; they share one representation.
type (
	RunID        = ID
	CheckpointID = ID
	CronID       = ID
	WorkerID     = ID
	EventID      = ID
	GuestID      = ID
	EmailID      = ID
	BreakID      = ID
)

func NewRunID() ID        { return New(PrefixRun) }
func NewCheckpointID() ID { return New(PrefixCheckpoint) }
func NewCronID() ID       { return New(PrefixCron) }
func NewWorkerID() ID     { return New(PrefixWorker) }
func NewEventID() ID      { return New(PrefixEvent) }
func NewGuestID() ID      { return New(PrefixGuest) }
func NewEmailID() ID      { return New(PrefixEmail) }
func NewBreakID() ID      { return New(PrefixBreak) }

func ParseRunID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixRun) }
func ParseCheckpointID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCheckpoint) }
func ParseCronID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixCron) }
func ParseWorkerID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixWorker) }
func ParseEventID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixEvent) }
func ParseGuestID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixGuest) }
func ParseEmailID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixEmail) }
func ParseBreakID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixBreak) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
