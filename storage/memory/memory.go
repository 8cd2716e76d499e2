// Package memory provides an in-process store that interprets queries
// directly. It backs tests and single-node deployments without a
// database.
package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"

	"github.com/CherifSy/divide"
	"github.com/CherifSy/divide/query"
)

// Store keeps records per type name. Reads and writes hand out deep
// copies, so callers can mutate results freely.
type Store struct {
	mu      sync.RWMutex
	records map[string][]*divide.Record
}

var _ divide.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{records: map[string][]*divide.Record{}}
}

// Execute runs a query against the stored records. SELECT returns
// matching rows, DELETE removes and returns them. Count selections
// return the matching rows too; use Count for the aggregate.
func (s *Store) Execute(ctx context.Context, q *query.Query) ([]*divide.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch q.Action {
	case query.ActionSelect:
		return s.selectRecords(q), nil
	case query.ActionDelete:
		return s.deleteRecords(q), nil
	default:
		return nil, query.ErrActionNotSupported
	}
}

// Save inserts the record, replacing any existing record of the same
// type and owner.
func (s *Store) Save(ctx context.Context, r *divide.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	typeName := r.TypeName()
	rows := s.records[typeName]

	for i, existing := range rows {
		if existing.OwnerID == r.OwnerID {
			rows[i] = r.Clone()
			return nil
		}
	}

	s.records[typeName] = append(rows, r.Clone())
	return nil
}

// Count returns the number of stored records of the given type.
func (s *Store) Count(ctx context.Context, typeName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.records[typeName])), nil
}

func (s *Store) selectRecords(q *query.Query) []*divide.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*divide.Record
	for _, r := range s.records[q.From] {
		if matches(r, q.Where) {
			out = append(out, r.Clone())
		}
	}

	if q.Random {
		rand.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}

	return window(out, q.Limit, q.Offset)
}

func (s *Store) deleteRecords(q *query.Query) []*divide.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept, removed []*divide.Record
	limit := q.Limit

	for _, r := range s.records[q.From] {
		if matches(r, q.Where) && (limit <= 0 || len(removed) < limit) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}

	s.records[q.From] = kept
	return removed
}

func window(rows []*divide.Record, limit, offset int) []*divide.Record {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func matches(r *divide.Record, clauses []query.Clause) bool {
	if len(clauses) == 0 {
		return true
	}

	result := evaluate(r, clauses[0])
	for _, c := range clauses[1:] {
		if c.Connector == query.Or {
			result = result || evaluate(r, c)
		} else {
			result = result && evaluate(r, c)
		}
	}
	return result
}

func evaluate(r *divide.Record, c query.Clause) bool {
	actual, ok := fieldValue(r, c.Field)
	if !ok {
		return false
	}
	return compare(actual, c.Op, c.Value)
}

func fieldValue(r *divide.Record, field string) (string, bool) {
	if key, isMeta := query.IsMetaField(field); isMeta {
		if r.Meta == nil {
			return "", false
		}
		v, ok := r.Meta[key]
		return v, ok
	}

	if field == "owner_id" {
		return strconv.FormatInt(r.OwnerID, 10), true
	}

	if r.UserData != nil {
		if v, ok := r.UserData[field]; ok {
			if s, isStr := v.(string); isStr {
				return s, true
			}
			return "", false
		}
	}

	return "", false
}

func compare(actual string, op query.Op, expected string) bool {
	// Ordering operators compare numerically when both sides parse,
	// otherwise lexically.
	an, aerr := strconv.ParseFloat(actual, 64)
	en, eerr := strconv.ParseFloat(expected, 64)
	numeric := aerr == nil && eerr == nil

	switch op {
	case query.OpEq:
		return actual == expected
	case query.OpNeq:
		return actual != expected
	case query.OpGt:
		if numeric {
			return an > en
		}
		return actual > expected
	case query.OpGte:
		if numeric {
			return an >= en
		}
		return actual >= expected
	case query.OpLt:
		if numeric {
			return an < en
		}
		return actual < expected
	case query.OpLte:
		if numeric {
			return an <= en
		}
		return actual <= expected
	default:
		return false
	}
}
