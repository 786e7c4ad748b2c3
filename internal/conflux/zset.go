/*
   conflux - Distributed database synchronization library

   Copyright (c) 2012-2015  Casey Marshall <cmars@cmarstech.com>

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package conflux

import (
	"bytes"
	"fmt"
	"math/big"
)

// ZSet is a set of integers in a finite field, kept close to the original
// conflux type minus the prefix-tree/recon-protocol machinery (network set
// reconciliation for cross-directory federation is a spec Non-goal; only
// the set arithmetic survives, for local signature diffing).
type ZSet struct {
	s map[string]*big.Int
	p *big.Int
}

// NewZSet returns a new ZSet containing the given elements.
func NewZSet(elements ...*Zp) *ZSet {
	zs := &ZSet{s: make(map[string]*big.Int, len(elements))}
	for i := range elements {
		zs.Add(elements[i])
	}
	return zs
}

// Len returns the length of the set.
func (zs *ZSet) Len() int {
	if zs == nil || zs.s == nil {
		return 0
	}
	return len(zs.s)
}

// Add adds an element to the set.
func (zs *ZSet) Add(v *Zp) {
	if zs.p == nil {
		zs.p = v.p
	} else {
		v.assertP(zs.p)
	}
	zs.s[v.String()] = big.NewInt(0).Set(&v.i)
}

// Contains returns whether the set contains the given element as a member.
func (zs *ZSet) Contains(v *Zp) bool {
	_, ok := zs.s[v.String()]
	return ok
}

// Items returns a slice of all elements in the set.
func (zs *ZSet) Items() []Zp {
	if zs == nil {
		return nil
	}
	result := make([]Zp, len(zs.s))
	i := 0
	for _, v := range zs.s {
		result[i] = Zp{p: zs.p}
		result[i].i.Set(v)
		i++
	}
	return result
}

// String returns a string representation of the set.
func (zs *ZSet) String() string {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "{")
	first := true
	for k := range zs.s {
		if first {
			first = false
		} else {
			fmt.Fprintf(buf, ", ")
		}
		fmt.Fprintf(buf, "%v", k)
	}
	fmt.Fprintf(buf, "}")
	return buf.String()
}

// ZSetDiff returns the set difference between two ZSets: the set of all
// Z(p) in a that are not in b.
func ZSetDiff(a *ZSet, b *ZSet) *ZSet {
	result := NewZSet()
	if a.p != nil {
		result.p = a.p
	} else if b.p != nil {
		result.p = b.p
	}
	for k, v := range a.s {
		if _, has := b.s[k]; !has {
			result.s[k] = v
		}
	}
	return result
}
