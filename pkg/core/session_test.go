// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"testing"

	"github.com/opalhost/go-opal/pkg/core/stream"
	"github.com/opalhost/go-opal/pkg/core/uid"
	"github.com/opalhost/go-opal/pkg/drive"
)

func TestParseMethodResponseSuccess(t *testing.T) {
	result, err := parseMethodResponse(mustBuildResultStream(t, []byte("ok")))
	if err != nil {
		t.Fatalf("parseMethodResponse: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("result = %v, want one token", result)
	}
	b, ok := result[0].([]byte)
	if !ok || string(b) != "ok" {
		t.Errorf("result[0] = %v, want []byte(\"ok\")", result[0])
	}
}

func TestParseMethodResponseFailureStatus(t *testing.T) {
	var mc MethodCall
	mc.buf.WriteByte(byte(stream.StartList))
	mc.buf.WriteByte(byte(stream.EndList))
	mc.buf.WriteByte(byte(stream.EndOfData))
	mc.buf.WriteByte(byte(stream.StartList))
	mc.buf.Write(stream.UInt(0x3f))
	mc.buf.Write(stream.UInt(0))
	mc.buf.Write(stream.UInt(0))
	mc.buf.WriteByte(byte(stream.EndList))

	_, err := parseMethodResponse(mc.buf.Bytes())
	mf, ok := err.(*MethodFailedError)
	if !ok {
		t.Fatalf("err = %v (%T), want *MethodFailedError", err, err)
	}
	if mf.Code != 0x3f {
		t.Errorf("Code = %#x, want 0x3f", mf.Code)
	}
}

func mustBuildResultStream(t *testing.T, cellValue []byte) []byte {
	t.Helper()
	var mc MethodCall
	mc.buf.Write(stream.Bytes(cellValue))
	mc.buf.WriteByte(byte(stream.StartList))
	mc.buf.Write(stream.UInt(0))
	mc.buf.Write(stream.UInt(0))
	mc.buf.Write(stream.UInt(0))
	mc.buf.WriteByte(byte(stream.EndList))
	return mc.buf.Bytes()
}

// sessionDrive answers IF-SEND by recording the envelope it was given and
// IF-RECV by replaying a single canned response, letting tests inspect the
// TSN/HSN a Session actually placed on the wire.
type sessionDrive struct {
	sent     []byte
	response []byte
}

func (d *sessionDrive) IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error {
	d.sent = append([]byte(nil), data...)
	return nil
}

func (d *sessionDrive) IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error {
	buf := make([]byte, len(*data))
	copy(buf, d.response)
	*data = buf
	return nil
}

func (d *sessionDrive) Identify() (*drive.Identity, error) { return &drive.Identity{}, nil }
func (d *sessionDrive) SerialNumber() ([]byte, error)      { return nil, nil }
func (d *sessionDrive) Close() error                       { return nil }

func TestSessionInvokePlacesItsOwnSessionNumbers(t *testing.T) {
	response, err := packSubPacket(ComID(0x0800), 55, 99, mustBuildResultStream(t, []byte("v")), 0)
	if err != nil {
		t.Fatalf("packSubPacket: %v", err)
	}
	d := &sessionDrive{response: response}
	cs := &ControlSession{d: d, comID: ComID(0x0800), proto: ProtocolLevelCore}
	s := &Session{cs: cs, tsn: 55, hsn: 99, sp: uid.LockingSP, proto: ProtocolLevelCore}

	mc := NewMethodCall(uid.InvokingID(uid.LockingSP), uid.MethodIDGet, ProtocolLevelCore)
	mc.StartList().EndList()
	if _, err := s.Invoke(mc); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	_, tsn, hsn, err := unpackSubPacket(d.sent, ComID(0x0800))
	if err != nil {
		t.Fatalf("unpackSubPacket(sent): %v", err)
	}
	if tsn != 55 || hsn != 99 {
		t.Errorf("sent tsn/hsn = %d/%d, want 55/99 (the session's own numbers, not the control session's 0/0)", tsn, hsn)
	}
}

func TestSessionProtoReportsNegotiatedLevel(t *testing.T) {
	s := &Session{proto: ProtocolLevelEnterprise}
	if s.Proto() != ProtocolLevelEnterprise {
		t.Errorf("Proto() = %v, want ProtocolLevelEnterprise", s.Proto())
	}
}
