// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import "testing"

func TestDatumRoundTrip(t *testing.T) {
	uidAtom := func(v uint64) Atom { return UIDAtom(v) }

	cases := []Datum{
		AtomDatum(UintAtom(42)),
		AtomDatum(IntAtom(-7)),
		NamedDatum(AtomDatum(UintAtom(3)), AtomDatum(UintAtom(1))),
		ListDatum([]Datum{AtomDatum(UintAtom(1)), AtomDatum(UintAtom(2)), AtomDatum(UintAtom(3))}),
		ListDatum(nil),
		MethodDatum(uidAtom(0x0000020500000001), uidAtom(0x0000000600000001),
			[]Datum{AtomDatum(UintAtom(5)), NamedDatum(AtomDatum(UintAtom(1)), AtomDatum(UintAtom(0)))},
			nil),
		EndSessionDatum(),
	}

	for i, d := range cases {
		enc, err := d.Encode(nil)
		if err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		if got := d.EncodedSize(); got != len(enc) {
			t.Errorf("case %d: EncodedSize() = %d, want %d", i, got, len(enc))
		}
		got, n, err := DecodeDatum(enc)
		if err != nil {
			t.Fatalf("case %d: DecodeDatum(% x): %v", i, enc, err)
		}
		if n != len(enc) {
			t.Errorf("case %d: DecodeDatum consumed %d bytes, want %d", i, n, len(enc))
		}
		if !got.Equal(d) {
			t.Errorf("case %d: DecodeDatum(% x) = %+v, want %+v", i, enc, got, d)
		}

		reenc, err := got.Encode(nil)
		if err != nil {
			t.Fatalf("case %d: re-Encode: %v", i, err)
		}
		if string(reenc) != string(enc) {
			t.Errorf("case %d: re-encode = % x, want % x", i, reenc, enc)
		}
	}
}

func TestDatumMethodShapeMatchesSpec(t *testing.T) {
	invoking := UIDAtom(1)
	method := UIDAtom(2)
	d := MethodDatum(invoking, method, []Datum{AtomDatum(UintAtom(9))}, nil)

	enc, err := d.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var want []byte
	want = append(want, byte(Call))
	invokingBytes, _ := invoking.Encode(nil)
	want = append(want, invokingBytes...)
	methodBytes, _ := method.Encode(nil)
	want = append(want, methodBytes...)
	want = append(want, byte(StartList))
	want = append(want, UInt(9)...)
	want = append(want, byte(EndList), byte(EndOfData), byte(StartList))
	want = append(want, UInt(0)...)
	want = append(want, UInt(0)...)
	want = append(want, UInt(0)...)
	want = append(want, byte(EndList))

	if string(enc) != string(want) {
		t.Errorf("Encode() = % x, want % x", enc, want)
	}
}

func TestEncodeUnsetDatumIsAnError(t *testing.T) {
	if _, err := (Datum{}).Encode(nil); err == nil {
		t.Fatal("expected an error encoding an Unset datum")
	}
}

func TestDecodeVectorMultipleTopLevelDatums(t *testing.T) {
	one, _ := AtomDatum(UintAtom(1)).Encode(nil)
	two, _ := EndSessionDatum().Encode(nil)
	buf := append(append([]byte{}, one...), two...)

	got, err := DecodeVector(buf)
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("DecodeVector returned %d datums, want 2", len(got))
	}
	if !got[0].Equal(AtomDatum(UintAtom(1))) {
		t.Errorf("first datum = %+v, want Uint(1)", got[0])
	}
	if !got[1].Equal(EndSessionDatum()) {
		t.Errorf("second datum = %+v, want EndSession", got[1])
	}
}
