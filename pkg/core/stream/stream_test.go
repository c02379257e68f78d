// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
)

func hb(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}

func TestUIntEncoding(t *testing.T) {
	cases := []struct {
		in   uint
		want string
	}{
		{0, "00"},
		{63, "3f"},
		{64, "8140"},
		{255, "81ff"},
		{256, "820100"},
		{65535, "82ffff"},
		{65536, "83010000"},
	}
	for _, c := range cases {
		got := UInt(c.in)
		if !reflect.DeepEqual(got, hb(c.want)) {
			t.Errorf("UInt(%d) = % x, want % x", c.in, got, hb(c.want))
		}
	}
}

func TestBytesEncoding(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "a0"},
		{"01020304", "a4 01020304"},
		{strings.Repeat("aa", 16), "d010 " + strings.Repeat("aa", 16)},
	}
	for _, c := range cases {
		got := Bytes(hb(c.in))
		if !reflect.DeepEqual(got, hb(c.want)) {
			t.Errorf("Bytes(% x) = % x, want % x", hb(c.in), got, hb(c.want))
		}
	}
}

func TestDecodeAtomRoundTrip(t *testing.T) {
	atoms := []Atom{
		UintAtom(0),
		UintAtom(63),
		UintAtom(64),
		UintAtom(70000),
		IntAtom(-1),
		IntAtom(-33),
		IntAtom(1000),
		UIDAtom(0x0000020500000001),
	}
	for _, a := range atoms {
		enc, err := a.Encode(nil)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", a, err)
		}
		got, n, err := DecodeAtom(enc)
		if err != nil {
			t.Fatalf("DecodeAtom(% x): %v", enc, err)
		}
		if n != len(enc) {
			t.Errorf("DecodeAtom(% x) consumed %d bytes, want %d", enc, n, len(enc))
		}
		if !got.Equal(a) {
			t.Errorf("DecodeAtom(% x) = %+v, want %+v", enc, got, a)
		}
	}
}

func TestAtomEqualityRequiresSameEncoding(t *testing.T) {
	tiny := UintAtom(1)
	b, err := BytesAtom([]byte{1})
	if err != nil {
		t.Fatal(err)
	}
	if tiny.Equal(b) {
		t.Fatalf("a Uint atom and a Bytes atom with the same payload must not be equal")
	}

	uid := UIDAtom(1)
	uintAtom := UintAtom(1)
	if uid.Equal(uintAtom) {
		t.Fatalf("a UID atom must never equal a plain Uint atom, even with the same numeric value")
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		in   string
		want List
	}{
		{"00", List{uint(0)}},
		{"a401020304", List{[]byte{1, 2, 3, 4}}},
		{"f0 01 02 f1", List{List{uint(1), uint(2)}}},
		{"f2 00 01 f3", List{List{uint(0), uint(1)}}},
	}
	for _, c := range cases {
		got, err := Decode(hb(c.in))
		if err != nil {
			t.Fatalf("Decode(%s): %v", c.in, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("Decode(%s) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestDecodeMethodCallShape(t *testing.T) {
	// CALL invoking_uid(8) method_uid(8) StartList EndList EndOfData
	// StartList 0 0 0 EndList
	buf := []byte{byte(Call)}
	buf = append(buf, Bytes(make([]byte, 8))...)
	buf = append(buf, Bytes(make([]byte, 8))...)
	buf = append(buf, byte(StartList), byte(EndList))
	buf = append(buf, byte(EndOfData))
	buf = append(buf, byte(StartList))
	buf = append(buf, UInt(0)...)
	buf = append(buf, UInt(0)...)
	buf = append(buf, UInt(0)...)
	buf = append(buf, byte(EndList))

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("Decode(method call) = %d elements, want 6", len(got))
	}
	if !EqualToken(got[0], Call) {
		t.Errorf("first element = %#v, want Call token", got[0])
	}
	status, ok := got[len(got)-1].(List)
	if !ok || len(status) != 3 || !EqualUInt(status[0], 0) {
		t.Errorf("status list = %#v, want [0 0 0]", got[len(got)-1])
	}
}

func TestDecodeTruncatedAtomErrors(t *testing.T) {
	if _, _, err := DecodeAtom(hb("a4 0102")); err == nil {
		t.Fatalf("expected error decoding a truncated Short bytes atom")
	}
}
