// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"errors"
	"testing"

	"github.com/opalhost/go-opal/pkg/drive"
)

func TestPackUnpackSubPacketRoundTrip(t *testing.T) {
	payload := []byte("hello opal")
	wire, err := packSubPacket(ComID(0x0800), 7, 42, payload, 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}

	got, tsn, hsn, err := unpackSubPacket(wire, ComID(0x0800))
	if err != nil {
		t.Fatalf("unpackSubPacket: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
	if tsn != 7 || hsn != 42 {
		t.Errorf("tsn/hsn = %d/%d, want 7/42", tsn, hsn)
	}
}

func TestPackSubPacketPadsToWordBoundary(t *testing.T) {
	// An odd-length payload must not change the envelope's word alignment:
	// every length the wire carries is a multiple of 4 bytes.
	wire, err := packSubPacket(ComID(1), 0, 0, []byte("abc"), 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	if len(wire)%4 != 0 {
		t.Errorf("wire length %d is not a multiple of 4", len(wire))
	}
}

func TestPackSubPacketPadsToBlockBoundary(t *testing.T) {
	wire, err := packSubPacket(ComID(1), 0, 0, []byte("small payload"), 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	if len(wire)%comPacketBlockSize != 0 {
		t.Errorf("wire length %d is not a multiple of %d", len(wire), comPacketBlockSize)
	}
	if len(wire) != comPacketBlockSize {
		t.Errorf("wire length = %d, want exactly one %d-byte block for a small payload", len(wire), comPacketBlockSize)
	}
}

func TestPackSubPacketRejectsOversizedComPacket(t *testing.T) {
	payload := make([]byte, 4096)
	if _, err := packSubPacket(ComID(1), 0, 0, payload, 2048); !errors.Is(err, ErrEnvelopeOversize) {
		t.Errorf("err = %v, want ErrEnvelopeOversize", err)
	}
}

func TestPackSubPacketSkipsLimitCheckWhenUnknown(t *testing.T) {
	// A limit that isn't known yet (0) must never reject a send: it's the
	// state before the first Properties exchange completes.
	payload := make([]byte, 4096)
	if _, err := packSubPacket(ComID(1), 0, 0, payload, 0); err != nil {
		t.Errorf("packSubPacket with unknown limit: %v", err)
	}
}

func TestUnpackSubPacketEmptyComPacketIsNotAnError(t *testing.T) {
	wire, err := packSubPacket(ComID(1), 0, 0, nil, 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	payload, _, _, err := unpackSubPacket(wire, ComID(1))
	if err != nil {
		t.Fatalf("unpackSubPacket: %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("payload = %v, want empty", payload)
	}
}

func TestUnpackSubPacketRejectsOversizedComPacket(t *testing.T) {
	raw := make([]byte, 20)
	// comPacketHeader.ComID lives at byte offset 4, comPacketHeader.Length
	// at offset 16, both big-endian.
	raw[5] = 0x01
	raw[16], raw[17], raw[18], raw[19] = 0xff, 0xff, 0xff, 0xff
	if _, _, _, err := unpackSubPacket(raw, ComID(1)); err != ErrTooLargeComPacket {
		t.Errorf("err = %v, want ErrTooLargeComPacket", err)
	}
}

func TestUnpackSubPacketRejectsComIDMismatch(t *testing.T) {
	wire, err := packSubPacket(ComID(0x0800), 3, 4, []byte("payload"), 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	if _, _, _, err := unpackSubPacket(wire, ComID(0x0801)); !errors.Is(err, ErrEnvelopeMismatch) {
		t.Errorf("err = %v, want ErrEnvelopeMismatch", err)
	}
}

// scriptedDrive answers IF-RECV with a queued sequence of responses, one
// per call, so receive()'s poll-until-payload loop can be exercised without
// a real drive.
type scriptedDrive struct {
	responses [][]byte
	calls     int
}

func (s *scriptedDrive) IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	buf := make([]byte, len(*data))
	copy(buf, s.responses[i])
	*data = buf
	s.calls++
	return nil
}

func (s *scriptedDrive) IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error {
	return nil
}
func (s *scriptedDrive) Identify() (*drive.Identity, error) { return &drive.Identity{}, nil }
func (s *scriptedDrive) SerialNumber() ([]byte, error)      { return nil, nil }
func (s *scriptedDrive) Close() error                       { return nil }

func TestReceivePollsPastEmptyResponses(t *testing.T) {
	empty, err := packSubPacket(ComID(1), 0, 0, nil, 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	full, err := packSubPacket(ComID(1), 3, 9, []byte("result"), 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	d := &scriptedDrive{responses: [][]byte{empty, empty, full}}

	payload, tsn, hsn, err := receive(d, ComID(1), nil)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(payload, []byte("result")) {
		t.Errorf("payload = %q, want %q", payload, "result")
	}
	if tsn != 3 || hsn != 9 {
		t.Errorf("tsn/hsn = %d/%d, want 3/9", tsn, hsn)
	}
	if d.calls != 3 {
		t.Errorf("calls = %d, want 3 (two polls plus the final read)", d.calls)
	}
}
