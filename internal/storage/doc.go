package storage

import (
	"strconv"
	"strings"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/gofrs/uuid"
)

// NewDocID assigns the internal storage document identifier on Create
// (spec section 4.10 strips it back out on Get).
func NewDocID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// crypto/rand failure; astronomically unlikely, and NewDocID has
		// no error return in the Port contract's Create signature.
		return uuid.Nil.String()
	}
	return id.String()
}

// Matches evaluates a Selector against a decoded JSON document. Both
// storage backends share this so the selector algebra (spec section 6:
// field equality, $ne, $lt, $or, $elemMatch) behaves identically regardless
// of which store executes it.
func Matches(doc *simplejson.Json, sel Selector) bool {
	switch sel.Op {
	case OpEq:
		return equalJSON(lookup(doc, sel.Field), sel.Value)
	case OpNe:
		return !equalJSON(lookup(doc, sel.Field), sel.Value)
	case OpLt:
		return lessJSON(lookup(doc, sel.Field), sel.Value)
	case OpOr:
		for _, s := range sel.Sub {
			if Matches(doc, s) {
				return true
			}
		}
		return false
	case OpAnd:
		for _, s := range sel.Sub {
			if !Matches(doc, s) {
				return false
			}
		}
		return true
	case OpNoneMatch:
		return !Matches(doc, Selector{Op: OpMatch, Field: sel.Field, Sub: sel.Sub})
	case OpMatch:
		arr, err := lookup(doc, sel.Field).Array()
		if err != nil {
			return false
		}
		for i := range arr {
			elem := doc.GetPath(strings.Split(sel.Field, ".")...).GetIndex(i)
			ok := true
			for _, s := range sel.Sub {
				if !Matches(elem, s) {
					ok = false
					break
				}
			}
			if ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchingElemMatchIndex returns the index of the first element of field
// satisfying sel's ElemMatch sub-predicates, or -1. Used to resolve
// "field.$.sub" positional patches.
func MatchingElemMatchIndex(doc *simplejson.Json, sel Selector) int {
	var target *Selector
	if sel.Op == OpMatch {
		target = &sel
	}
	for i := range sel.Sub {
		if sel.Sub[i].Op == OpMatch {
			target = &sel.Sub[i]
		}
	}
	if target == nil {
		return -1
	}
	arr, err := lookup(doc, target.Field).Array()
	if err != nil {
		return -1
	}
	for i := range arr {
		elem := doc.GetPath(strings.Split(target.Field, ".")...).GetIndex(i)
		ok := true
		for _, s := range target.Sub {
			if !Matches(elem, s) {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

// ApplyPatch applies a Patch, resolving any "field.$.sub" key against
// elemIndex (the array index MatchingElemMatchIndex resolved for this
// selector).
func ApplyPatch(doc *simplejson.Json, patch Patch, elemIndex int) {
	for key, value := range patch {
		parts := strings.Split(key, ".")
		path := make([]string, 0, len(parts))
		for _, p := range parts {
			if p == "$" {
				path = append(path, strconv.Itoa(elemIndex))
				continue
			}
			path = append(path, p)
		}
		setPath(doc, path, value)
	}
}

func lookup(doc *simplejson.Json, field string) *simplejson.Json {
	return doc.GetPath(strings.Split(field, ".")...)
}

func setPath(doc *simplejson.Json, path []string, value interface{}) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		doc.Set(path[0], value)
		return
	}
	child := doc.Get(path[0])
	if arr, err := child.Array(); err == nil {
		idx, err := strconv.Atoi(path[1])
		if err != nil || idx < 0 || idx >= len(arr) {
			return
		}
		if len(path) == 2 {
			arr[idx] = value
			return
		}
		setPath(child.GetIndex(idx), path[2:], value)
		return
	}
	setPath(child, path[1:], value)
	doc.Set(path[0], child.Interface())
}

func equalJSON(j *simplejson.Json, value interface{}) bool {
	if value == nil {
		return j.Interface() == nil
	}
	switch v := value.(type) {
	case string:
		s, err := j.String()
		return err == nil && s == v
	case bool:
		b, err := j.Bool()
		return err == nil && b == v
	case int:
		n, err := j.Int()
		return err == nil && n == v
	default:
		return false
	}
}

func lessJSON(j *simplejson.Json, value interface{}) bool {
	switch v := value.(type) {
	case string:
		s, err := j.String()
		return err == nil && s < v
	case time.Time:
		s, err := j.String()
		if err != nil {
			return false
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		return err == nil && t.Before(v)
	default:
		return false
	}
}
