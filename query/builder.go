package query

// Builder accumulates a Query description. Zero value is not usable; start
// from Select, Count, or Delete.
type Builder struct {
	q Query
}

// Select starts a row-set query.
func Select() *Builder {
	return &Builder{q: Query{Action: ActionSelect, Selection: SelectRows}}
}

// Count starts an aggregate count query. Limit and offset are ignored by
// the compiler for counts.
func Count() *Builder {
	return &Builder{q: Query{Action: ActionSelect, Selection: SelectCount}}
}

// Delete starts a delete query.
func Delete() *Builder {
	return &Builder{q: Query{Action: ActionDelete}}
}

// From sets the target type name. The compiler maps it to a storage-safe
// identifier.
func (b *Builder) From(typeName string) *Builder {
	b.q.From = typeName
	return b
}

// Where appends a predicate clause. The optional connector joins it to the
// accumulated predicate; it defaults to And and is ignored on the first
// clause.
func (b *Builder) Where(field string, op Op, value string, connector ...Connector) *Builder {
	c := Clause{Field: field, Op: op, Value: value, Connector: And}
	if len(connector) > 0 {
		c.Connector = connector[0]
	}
	if len(b.q.Where) == 0 {
		c.Connector = ""
	}
	b.q.Where = append(b.q.Where, c)
	return b
}

// WhereMeta appends a predicate clause against the metadata namespace.
func (b *Builder) WhereMeta(field string, op Op, value string, connector ...Connector) *Builder {
	return b.Where(Meta(field), op, value, connector...)
}

// Limit caps the number of affected rows. Applies to SELECT and DELETE.
func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = n
	return b
}

// Offset skips rows before the window starts.
func (b *Builder) Offset(n int) *Builder {
	b.q.Offset = n
	return b
}

// Random asks the backend for a random sample ordering.
func (b *Builder) Random() *Builder {
	b.q.Random = true
	return b
}

// Build returns the accumulated query.
func (b *Builder) Build() *Query {
	q := b.q
	return &q
}
