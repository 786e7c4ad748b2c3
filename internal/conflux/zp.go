/*
   conflux - Distributed database synchronization library
	Based on the algorithm described in
		"Set Reconciliation with Nearly Optimal	Communication Complexity",
			Yaron Minsky, Ari Trachtenberg, and Richard Zippel, 2004.

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

// Package conflux carries the finite-field element and set arithmetic from
// the original conflux set-reconciliation library. The network recon
// protocol itself (prefix trees, peer transport) is cross-directory
// federation, a spec Non-goal, and is not reimplemented here. What remains
// is repurposed by internal/openpgp/sigset.go to diff the third-party
// certifications on two versions of a key (spec section 4.1,
// FilterBySignatures) without recomputing a full byte-slice set diff by
// hand every time.
package conflux

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// P_256 defines a finite field Z(P) that includes all 256-bit integers. Each
// third-party certification is hashed into an element of this field.
var P_256 = big.NewInt(0).SetBytes([]byte{
	0x1, 0xdd, 0xf4, 0x8a, 0xc3, 0x45, 0x19, 0x18,
	0x13, 0xab, 0x7d, 0x92, 0x27, 0x99, 0xe8, 0x93,
	0x96, 0x19, 0x43, 0x8, 0xa4, 0xa5, 0x9, 0xb,
	0x36, 0xc9, 0x62, 0xd5, 0xd5, 0xd6, 0xdd, 0x80, 0x27})

var zero = big.NewInt(0)

// Zp represents a value in the finite field Z(p), an integer in which all
// arithmetic is (mod p).
type Zp struct {
	// i is the integer's value.
	i big.Int

	// p is the prime bound of the finite field Z(p).
	p *big.Int
}

// Z returns an integer in the finite field P initialized to 0.
func Z(p *big.Int) *Zp {
	return &Zp{p: p}
}

// Zb returns an integer in the finite field p from a byte representation.
func Zb(p *big.Int, b []byte) *Zp {
	z := Z(p)
	z.SetBytes(b)
	return z
}

func reversed(b []byte) []byte {
	l := len(b)
	result := make([]byte, l)
	for i := 0; i < l; i++ {
		result[i] = b[l-i-1]
	}
	return result
}

// P returns the modulus of Zp.
func (zp *Zp) P() *big.Int {
	return zp.p
}

// FullKeyHash returns Zp in the format of a full-key hash.
func (zp *Zp) FullKeyHash() string {
	return hex.EncodeToString(zp.Bytes())
}

// Bytes returns the byte representation of Zp.
func (zp *Zp) Bytes() []byte {
	return reversed(zp.i.Bytes())
}

// Set sets zp to x and returns zp.
func (zp *Zp) Set(x *Zp) *Zp {
	zp.p = x.p
	zp.i.Set(&x.i)
	return zp
}

// SetBytes sets the integer from its byte representation.
func (zp *Zp) SetBytes(b []byte) {
	zp.i.SetBytes(reversed(b))
	zp.Norm()
}

// Copy returns a new Zp instance with the same value.
func (zp *Zp) Copy() *Zp {
	return Z(zp.p).Set(zp)
}

// Norm normalizes the integer to its finite field, (mod P).
func (zp *Zp) Norm() *Zp {
	zp.i.Mod(&zp.i, zp.p)
	return zp
}

// Cmp compares zp with another integer. See big.Int.Cmp for return value
// semantics.
func (zp *Zp) Cmp(x *Zp) int {
	zp.assertEqualP(x)
	return (&zp.i).Cmp(&x.i)
}

// IsZero returns whether the integer is zero.
func (zp *Zp) IsZero() bool {
	return zp.i.Cmp(zero) == 0
}

func (zp *Zp) String() string {
	return zp.i.String()
}

// assertP asserts an integer is in the expected finite field P.
func (zp *Zp) assertP(p *big.Int) {
	if zp.p.Cmp(p) != 0 {
		panic(fmt.Sprintf("expect finite field Z(%v), was Z(%v)", p, zp.p))
	}
}

// assertEqualP asserts all integers share the same finite field P as this one.
func (zp *Zp) assertEqualP(values ...*Zp) {
	for _, v := range values {
		zp.assertP(v.p)
	}
}
