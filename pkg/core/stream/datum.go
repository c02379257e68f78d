// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import "fmt"

// DatumKind identifies which of the TCG stream's composite shapes a Datum
// holds.
type DatumKind int

const (
	DatumUnset DatumKind = iota
	DatumAtomKind
	DatumNamed
	DatumListKind
	DatumMethod
	DatumEndSession
)

// Datum is a tagged value in the TCG stream grammar: a plain Atom, or one
// of the composite shapes built from control tokens (Named pairs, Lists,
// full Method invocations, and the EndOfSession token). Where List/Decode
// discards each element's wire shape once it lands in a Go interface{},
// Datum keeps it, so a decoded structure can be re-encoded byte-for-byte
// and compared with Equal without losing the distinction between, say, a
// List containing one atom and that atom on its own.
//
// The zero Datum is DatumUnset. Encoding an Unset datum is an error - it
// exists only as the "nothing decoded yet" state, never a value to send.
type Datum struct {
	kind DatumKind

	atom Atom

	name  *Datum
	value *Datum

	items []Datum

	invokingUID Atom
	methodUID   Atom
	args        []Datum
	status      []uint
}

// AtomDatum wraps a plain atom.
func AtomDatum(a Atom) Datum {
	return Datum{kind: DatumAtomKind, atom: a}
}

// NamedDatum builds a Named datum: StartName name value EndName.
func NamedDatum(name, value Datum) Datum {
	n, v := name, value
	return Datum{kind: DatumNamed, name: &n, value: &v}
}

// ListDatum builds a List datum: StartList items... EndList.
func ListDatum(items []Datum) Datum {
	return Datum{kind: DatumListKind, items: items}
}

// MethodDatum builds a full method invocation datum:
//
//	CALL invoking_uid method_uid StartList args... EndList EndOfData
//	StartList status... EndList
//
// A nil status defaults to the standard success trailer [0 0 0].
func MethodDatum(invokingUID, methodUID Atom, args []Datum, status []uint) Datum {
	if status == nil {
		status = []uint{0, 0, 0}
	}
	return Datum{kind: DatumMethod, invokingUID: invokingUID, methodUID: methodUID, args: args, status: status}
}

// EndSessionDatum builds the bare EndOfSession token as a Datum.
func EndSessionDatum() Datum {
	return Datum{kind: DatumEndSession}
}

func (d Datum) Kind() DatumKind { return d.kind }

// Equal reports whether two datums have the same shape and, recursively,
// equal contents - atom comparisons go through Atom.Equal, so encoding
// class is part of equality all the way down.
func (d Datum) Equal(o Datum) bool {
	if d.kind != o.kind {
		return false
	}
	switch d.kind {
	case DatumUnset, DatumEndSession:
		return true
	case DatumAtomKind:
		return d.atom.Equal(o.atom)
	case DatumNamed:
		return d.name.Equal(*o.name) && d.value.Equal(*o.value)
	case DatumListKind:
		if len(d.items) != len(o.items) {
			return false
		}
		for i := range d.items {
			if !d.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case DatumMethod:
		if !d.invokingUID.Equal(o.invokingUID) || !d.methodUID.Equal(o.methodUID) {
			return false
		}
		if len(d.args) != len(o.args) || len(d.status) != len(o.status) {
			return false
		}
		for i := range d.args {
			if !d.args[i].Equal(o.args[i]) {
				return false
			}
		}
		for i := range d.status {
			if d.status[i] != o.status[i] {
				return false
			}
		}
		return true
	}
	return false
}

// EncodedSize returns the number of bytes Encode will produce.
func (d Datum) EncodedSize() int {
	switch d.kind {
	case DatumAtomKind:
		return d.atom.EncodedSize()
	case DatumNamed:
		return 2 + d.name.EncodedSize() + d.value.EncodedSize()
	case DatumListKind:
		n := 2
		for _, it := range d.items {
			n += it.EncodedSize()
		}
		return n
	case DatumMethod:
		n := 1 + d.invokingUID.EncodedSize() + d.methodUID.EncodedSize()
		n += 2
		for _, a := range d.args {
			n += a.EncodedSize()
		}
		n += 1 + 2
		for _, s := range d.status {
			n += UintAtom(uint64(s)).EncodedSize()
		}
		return n
	case DatumEndSession:
		return 1
	}
	return 0
}

// Encode appends the wire representation of the datum to out and returns
// the extended slice.
func (d Datum) Encode(out []byte) ([]byte, error) {
	var err error
	switch d.kind {
	case DatumUnset:
		return nil, fmt.Errorf("%w: cannot encode an Unset datum", ErrEncodingClass)
	case DatumAtomKind:
		return d.atom.Encode(out)
	case DatumNamed:
		out = append(out, byte(StartName))
		if out, err = d.name.Encode(out); err != nil {
			return nil, err
		}
		if out, err = d.value.Encode(out); err != nil {
			return nil, err
		}
		return append(out, byte(EndName)), nil
	case DatumListKind:
		out = append(out, byte(StartList))
		for _, it := range d.items {
			if out, err = it.Encode(out); err != nil {
				return nil, err
			}
		}
		return append(out, byte(EndList)), nil
	case DatumMethod:
		out = append(out, byte(Call))
		if out, err = d.invokingUID.Encode(out); err != nil {
			return nil, err
		}
		if out, err = d.methodUID.Encode(out); err != nil {
			return nil, err
		}
		out = append(out, byte(StartList))
		for _, a := range d.args {
			if out, err = a.Encode(out); err != nil {
				return nil, err
			}
		}
		out = append(out, byte(EndList), byte(EndOfData), byte(StartList))
		for _, s := range d.status {
			if out, err = UintAtom(uint64(s)).Encode(out); err != nil {
				return nil, err
			}
		}
		return append(out, byte(EndList)), nil
	case DatumEndSession:
		return append(out, byte(EndOfSession)), nil
	}
	return nil, ErrEncodingClass
}

// DecodeDatum decodes a single datum at the start of buf, returning the
// datum and the number of bytes consumed.
func DecodeDatum(buf []byte) (Datum, int, error) {
	if len(buf) == 0 {
		return Datum{}, 0, ErrEndOfStream
	}
	switch TokenType(buf[0]) {
	case EndOfSession:
		return Datum{kind: DatumEndSession}, 1, nil
	case StartName:
		name, n1, err := DecodeDatum(buf[1:])
		if err != nil {
			return Datum{}, 0, err
		}
		off := 1 + n1
		value, n2, err := DecodeDatum(buf[off:])
		if err != nil {
			return Datum{}, 0, err
		}
		off += n2
		if off >= len(buf) || TokenType(buf[off]) != EndName {
			return Datum{}, 0, fmt.Errorf("%w: Named datum missing EndName", ErrDecodeStructure)
		}
		off++
		return Datum{kind: DatumNamed, name: &name, value: &value}, off, nil
	case StartList:
		items, n, err := decodeDatumsUntil(buf[1:], EndList)
		if err != nil {
			return Datum{}, 0, err
		}
		return Datum{kind: DatumListKind, items: items}, 1 + n, nil
	case Call:
		off := 1
		invoking, n, err := DecodeDatum(buf[off:])
		if err != nil {
			return Datum{}, 0, err
		}
		off += n
		method, n, err := DecodeDatum(buf[off:])
		if err != nil {
			return Datum{}, 0, err
		}
		off += n
		if off >= len(buf) || TokenType(buf[off]) != StartList {
			return Datum{}, 0, fmt.Errorf("%w: Method datum missing argument list", ErrDecodeStructure)
		}
		args, n, err := decodeDatumsUntil(buf[off+1:], EndList)
		if err != nil {
			return Datum{}, 0, err
		}
		off += 1 + n
		if off >= len(buf) || TokenType(buf[off]) != EndOfData {
			return Datum{}, 0, fmt.Errorf("%w: Method datum missing EndOfData", ErrDecodeStructure)
		}
		off++
		if off >= len(buf) || TokenType(buf[off]) != StartList {
			return Datum{}, 0, fmt.Errorf("%w: Method datum missing status list", ErrDecodeStructure)
		}
		statusDatums, n, err := decodeDatumsUntil(buf[off+1:], EndList)
		if err != nil {
			return Datum{}, 0, err
		}
		off += 1 + n
		status := make([]uint, len(statusDatums))
		for i, sd := range statusDatums {
			if sd.kind != DatumAtomKind || sd.atom.Kind != KindUint {
				return Datum{}, 0, fmt.Errorf("%w: status list element is not a Uint atom", ErrDecodeStructure)
			}
			status[i] = uint(sd.atom.u)
		}
		if invoking.kind != DatumAtomKind || method.kind != DatumAtomKind ||
			invoking.atom.Kind != KindBytes || method.atom.Kind != KindBytes {
			return Datum{}, 0, fmt.Errorf("%w: Method datum UIDs must be Bytes atoms", ErrDecodeStructure)
		}
		return Datum{
			kind:        DatumMethod,
			invokingUID: invoking.atom,
			methodUID:   method.atom,
			args:        args,
			status:      status,
		}, off, nil
	default:
		a, n, err := DecodeAtom(buf)
		if err != nil {
			return Datum{}, 0, err
		}
		return Datum{kind: DatumAtomKind, atom: a}, n, nil
	}
}

func decodeDatumsUntil(buf []byte, closing TokenType) ([]Datum, int, error) {
	var items []Datum
	off := 0
	for {
		if off >= len(buf) {
			return nil, 0, ErrEndOfStream
		}
		if TokenType(buf[off]) == closing {
			return items, off + 1, nil
		}
		d, n, err := DecodeDatum(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
		off += n
	}
}

// DecodeVector decodes buf as a flat sequence of top-level datums, the
// decode_vector operation used to parse a whole method-stream payload
// (typically a single Method datum followed, on the response side, by an
// EndOfSession datum or nothing).
func DecodeVector(buf []byte) ([]Datum, error) {
	var out []Datum
	for len(buf) > 0 {
		d, n, err := DecodeDatum(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
		buf = buf[n:]
	}
	return out, nil
}
