// Package storage defines the Storage Port (spec section 6): a
// document-oriented persistence contract with create/get/update/remove and
// predicate selectors, backed in this repository by either Postgres
// (pgstore) or an embedded LevelDB (leveldbstore).
package storage

import "context"

// DocType names the document collection. The core only ever uses
// "publickey" (spec section 6), but the port is typed to keep storage
// backends honest about which collection a call addresses.
type DocType string

const PublicKeyType DocType = "publickey"

// Op is a selector comparison operator.
type Op string

const (
	OpEq        Op = "eq"
	OpNe        Op = "ne"
	OpLt        Op = "lt"
	OpOr        Op = "or"
	OpAnd       Op = "and"
	OpMatch     Op = "elemMatch"
	OpNoneMatch Op = "noneMatch"
)

// Selector is one predicate in a selector tree. Field and Value are used by
// OpEq/OpNe/OpLt. Sub holds the operand selectors for OpOr. For OpMatch,
// Field names the array field (e.g. "userIds") and Sub holds the predicate
// applied to each element.
type Selector struct {
	Op    Op
	Field string
	Value interface{}
	Sub   []Selector
}

// Eq builds a field-equality selector.
func Eq(field string, value interface{}) Selector { return Selector{Op: OpEq, Field: field, Value: value} }

// Ne builds a field-inequality selector.
func Ne(field string, value interface{}) Selector { return Selector{Op: OpNe, Field: field, Value: value} }

// Lt builds a field-less-than selector.
func Lt(field string, value interface{}) Selector { return Selector{Op: OpLt, Field: field, Value: value} }

// Or combines selectors disjunctively.
func Or(sub ...Selector) Selector { return Selector{Op: OpOr, Sub: sub} }

// And combines selectors conjunctively.
func And(sub ...Selector) Selector { return Selector{Op: OpAnd, Sub: sub} }

// ElemMatch matches an array field where at least one element satisfies sub.
func ElemMatch(field string, sub ...Selector) Selector {
	return Selector{Op: OpMatch, Field: field, Sub: sub}
}

// NoneMatch matches an array field where no element satisfies sub, the
// negation of ElemMatch used by the lazy purge to find keys with no
// verified user id (spec section 4.2 step 1).
func NoneMatch(field string, sub ...Selector) Selector {
	return Selector{Op: OpNoneMatch, Field: field, Sub: sub}
}

// CreateResult reports how many documents a Create call inserted. The core
// treats anything other than 1 as fatal (spec section 6).
type CreateResult struct {
	InsertedCount int
}

// Patch is a set of field updates. Keys may address array elements via the
// positional operator, e.g. "userIds.$.verified", matched against the
// element that satisfied the selector's ElemMatch predicate.
type Patch map[string]interface{}

// Port is the Storage Port contract (spec section 6).
type Port interface {
	Create(ctx context.Context, doc []byte, typ DocType) (CreateResult, error)
	Get(ctx context.Context, sel Selector, typ DocType) ([]byte, error)
	Update(ctx context.Context, sel Selector, patch Patch, typ DocType) error
	Remove(ctx context.Context, sel Selector, typ DocType) (int, error)
}

// ErrNotFound is returned by Get when no document matches the selector.
var ErrNotFound = portError("document not found")

type portError string

func (e portError) Error() string { return string(e) }
