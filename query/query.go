package query

import (
	"fmt"
	"strings"

	errors "github.com/goliatone/go-errors"
)

// Action is the query intent.
type Action string

const (
	ActionSelect Action = "SELECT"
	ActionDelete Action = "DELETE"
	// ActionUpdate is reserved. Compile rejects it until a backend needs it.
	ActionUpdate Action = "UPDATE"
)

// Op is a clause comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpNeq Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Connector joins a clause to the predicate accumulated before it.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// Selection shapes the result set of a SELECT.
type Selection string

const (
	SelectRows  Selection = "rows"
	SelectCount Selection = "count"
)

// MetaPrefix namespaces clauses that target record metadata rather than a
// top-level field. Backends use it to route the predicate into the
// metadata attribute bag.
const MetaPrefix = "meta_data."

// Meta returns the metadata-namespaced path for a field.
func Meta(field string) string {
	return MetaPrefix + field
}

// IsMetaField reports whether the path targets the metadata namespace, and
// returns the bare field name when it does.
func IsMetaField(path string) (string, bool) {
	if strings.HasPrefix(path, MetaPrefix) {
		return strings.TrimPrefix(path, MetaPrefix), true
	}
	return path, false
}

// Clause is a single field/operator/value predicate. Connector is ignored
// on the first clause of a query; every later clause is joined to the
// accumulated predicate by its own connector, so mixed AND/OR chains are
// representable.
type Clause struct {
	Connector Connector `json:"connector,omitempty"`
	Field     string    `json:"field"`
	Op        Op        `json:"op"`
	Value     string    `json:"value"`
}

// Query describes a read or delete intent over records of one type.
type Query struct {
	Action    Action    `json:"action"`
	From      string    `json:"from"`
	Where     []Clause  `json:"where,omitempty"`
	Selection Selection `json:"selection,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
	Random    bool      `json:"random,omitempty"`
}

// ErrActionNotSupported is returned when asked to compile a reserved action.
var ErrActionNotSupported = errors.New("query action not supported", errors.CategoryBadInput).
	WithTextCode("QUERY_ACTION_NOT_SUPPORTED").
	WithCode(errors.CodeBadRequest)

// SafeName maps a type name to a storage-safe identifier. The substitution
// is reversible via ReverseName for names that carry no underscores of
// their own.
func SafeName(typeName string) string {
	return strings.ReplaceAll(typeName, ".", "_")
}

// ReverseName restores a type name from its storage-safe identifier.
func ReverseName(safe string) string {
	return strings.ReplaceAll(safe, "_", ".")
}

// Compile renders the query to a flat backend query string. Output is
// deterministic: equal queries compile to equal strings.
func (q *Query) Compile() (string, error) {
	switch q.Action {
	case ActionSelect:
		if q.Selection == SelectCount {
			return q.compileCount(), nil
		}
		return q.compileSelect(), nil
	case ActionDelete:
		return q.compileDelete(), nil
	default:
		return "", ErrActionNotSupported
	}
}

func (q *Query) compileSelect() string {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(SafeName(q.From))
	q.writeWhere(&sb)
	if q.Random {
		sb.WriteString(" ORDER BY RANDOM()")
	}
	q.writeWindow(&sb)
	return sb.String()
}

func (q *Query) compileCount() string {
	var sb strings.Builder
	sb.WriteString("SELECT count(*) FROM ")
	sb.WriteString(SafeName(q.From))
	q.writeWhere(&sb)
	return sb.String()
}

func (q *Query) compileDelete() string {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(SafeName(q.From))
	q.writeWhere(&sb)
	q.writeWindow(&sb)
	return sb.String()
}

func (q *Query) writeWhere(sb *strings.Builder) {
	if len(q.Where) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	for i, c := range q.Where {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(string(c.Connector))
			sb.WriteString(" ")
		}
		sb.WriteString(c.coded())
	}
}

func (q *Query) writeWindow(sb *strings.Builder) {
	if q.Limit > 0 {
		fmt.Fprintf(sb, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(sb, " OFFSET %d", q.Offset)
	}
}

func (c Clause) coded() string {
	return fmt.Sprintf("%s %s '%s'", c.Field, c.Op, escape(c.Value))
}

func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
