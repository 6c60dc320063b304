// Package row holds the record type stored in a sub-table and its id scheme.
package row

import (
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Id prefixes for rows that exist only on the client.
const (
	PrefixTemp    = "temp-"
	PrefixDefault = "default-"
)

// Kind tells where a row id came from.
type Kind int

const (
	// KindPersisted ids were issued by the server.
	KindPersisted Kind = iota
	// KindTemp ids belong to rows the user added.
	KindTemp
	// KindDefault ids belong to rows materialized from a default-value push.
	KindDefault
)

func (k Kind) String() string {
	switch k {
	case KindTemp:
		return "temp"
	case KindDefault:
		return "default"
	}
	return "persisted"
}

// IDKind classifies id by prefix.
func IDKind(id string) Kind {
	switch {
	case strings.HasPrefix(id, PrefixTemp):
		return KindTemp
	case strings.HasPrefix(id, PrefixDefault):
		return KindDefault
	}
	return KindPersisted
}

// IsClientID reports whether id has not been persisted yet.
func IsClientID(id string) bool { return IDKind(id) != KindPersisted }

// IDGenerator issues the random part of client row ids.
// Implemented by UUIDGenerator (production) and testutil.SequenceIDs (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator returns random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }

// NewID builds a client id of the given kind. KindPersisted is not a client
// kind and is treated as KindTemp.
func NewID(gen IDGenerator, kind Kind) string {
	if kind == KindDefault {
		return PrefixDefault + gen.Generate()
	}
	return PrefixTemp + gen.Generate()
}

// Row is one record of a sub-table: field values plus bookkeeping.
type Row struct {
	ID     string         `json:"rowid"`
	Values map[string]any `json:"values"`

	AllowEdit       bool     `json:"allowedit"`
	IsEdited        bool     `json:"isEdited,omitempty"`
	IsCopy          bool     `json:"isCopy,omitempty"`
	UpdatedFieldIDs []string `json:"updatedControlIds,omitempty"`

	// AddedAt orders rows; it carries no identity.
	AddedAt int64 `json:"addTime"`
}

// New returns an editable row with the given id and a copy of values.
func New(id string, values map[string]any) Row {
	v := make(map[string]any, len(values))
	maps.Copy(v, values)
	return Row{ID: id, Values: v, AllowEdit: true}
}

// Clone returns a deep-enough copy: the value map and updated list are fresh.
func (r Row) Clone() Row {
	out := r
	out.Values = maps.Clone(r.Values)
	if out.Values == nil {
		out.Values = map[string]any{}
	}
	out.UpdatedFieldIDs = slices.Clone(r.UpdatedFieldIDs)
	return out
}

// Get returns the value of a field.
func (r Row) Get(fieldID string) (any, bool) {
	v, ok := r.Values[fieldID]
	return v, ok
}

// Merge writes values into the row, allocating the map if needed.
func (r *Row) Merge(values map[string]any) {
	if r.Values == nil {
		r.Values = make(map[string]any, len(values))
	}
	maps.Copy(r.Values, values)
}

// MarkUpdated appends ids to UpdatedFieldIDs, keeping first-seen order and
// dropping duplicates.
func (r *Row) MarkUpdated(ids ...string) {
	for _, id := range ids {
		if id == "" || slices.Contains(r.UpdatedFieldIDs, id) {
			continue
		}
		r.UpdatedFieldIDs = append(r.UpdatedFieldIDs, id)
	}
}

// IsEmpty reports whether v counts as "no value" for required checks.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

// Ref identifies one sub-table instance: the rows stored under a
// sub-table field of a parent record.
type Ref struct {
	Table  string `json:"worksheetId" yaml:"table"`
	Record string `json:"recordId" yaml:"record"`
	Field  string `json:"controlId,omitempty" yaml:"field,omitempty"`
}

func (r Ref) String() string {
	if r.Field == "" {
		return r.Table + "/" + r.Record
	}
	return r.Table + "/" + r.Record + "/" + r.Field
}
