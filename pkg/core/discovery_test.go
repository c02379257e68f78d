// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/opalhost/go-opal/pkg/core/feature"
	"github.com/opalhost/go-opal/pkg/drive"
)

// buildLevel0Response assembles a synthetic Level-0 discovery response
// carrying the given feature descriptors, in the order supplied.
func buildLevel0Response(t *testing.T, descriptors []struct {
	Code    feature.FeatureCode
	Payload []byte
}) []byte {
	t.Helper()
	var body bytes.Buffer
	for _, d := range descriptors {
		binary.Write(&body, binary.BigEndian, featureHeader{
			Code:    d.Code,
			Version: 0x10,
			Length:  uint8(len(d.Payload)),
		})
		body.Write(d.Payload)
	}

	var out bytes.Buffer
	// l0Header.Length counts everything after the length field itself:
	// MajorVersion + MinorVersion + reserved (12 bytes) plus the feature body.
	binary.Write(&out, binary.BigEndian, l0Header{
		Length:       uint32(12 + body.Len()),
		MajorVersion: 0,
		MinorVersion: 1,
	})
	out.Write(body.Bytes())
	return out.Bytes()
}

// fakeDiscoveryDrive answers the TPM probe (IF-RECV protocol 0) with a
// canned "TCG Management supported" list, and IF-RECV protocol 1 (Level-0
// discovery) with a fixed discovery payload.
type fakeDiscoveryDrive struct {
	response []byte
}

// securityProtocolsResponse builds a SecurityProtocols() reply advertising
// exactly the protocols given, in the wire format drive.SecurityProtocols
// parses: 6 reserved bytes, a big-endian uint16 length, then that many
// protocol-id bytes.
func securityProtocolsResponse(protos ...drive.SecurityProtocol) []byte {
	buf := make([]byte, 8+len(protos))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(protos)))
	for i, p := range protos {
		buf[8+i] = byte(p)
	}
	return buf
}

func (f *fakeDiscoveryDrive) IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error {
	buf := make([]byte, len(*data))
	if proto == drive.SecurityProtocolInformation {
		copy(buf, securityProtocolsResponse(drive.SecurityProtocolTCGManagement))
	} else {
		copy(buf, f.response)
	}
	*data = buf
	return nil
}

func (f *fakeDiscoveryDrive) IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error {
	return nil
}

func (f *fakeDiscoveryDrive) Identify() (*drive.Identity, error) { return &drive.Identity{}, nil }
func (f *fakeDiscoveryDrive) SerialNumber() ([]byte, error)      { return nil, nil }
func (f *fakeDiscoveryDrive) Close() error                       { return nil }

func TestDiscovery0ParsesFeatures(t *testing.T) {
	response := buildLevel0Response(t, []struct {
		Code    feature.FeatureCode
		Payload []byte
	}{
		{Code: feature.CodeTPer, Payload: []byte{0x01}},
		{Code: feature.CodeOpalV2, Payload: mustEncode(t, feature.OpalV2{
			CommonSSC: feature.CommonSSC{BaseComID: 0x0800, NumComID: 1},
		})},
	})
	d := &fakeDiscoveryDrive{response: response}

	d0, err := Discovery0(d)
	if err != nil {
		t.Fatalf("Discovery0: %v", err)
	}
	if d0.TPer == nil || !d0.TPer.SyncSupported {
		t.Errorf("TPer feature not parsed as expected: %+v", d0.TPer)
	}
	if d0.OpalV2 == nil || d0.OpalV2.BaseComID != 0x0800 {
		t.Errorf("OpalV2 feature not parsed as expected: %+v", d0.OpalV2)
	}
}

func TestDiscovery0RequiresOpal(t *testing.T) {
	response := buildLevel0Response(t, []struct {
		Code    feature.FeatureCode
		Payload []byte
	}{
		{Code: feature.CodeTPer, Payload: []byte{0x01}},
	})
	d := &fakeDiscoveryDrive{response: response}

	if _, err := Discovery0(d); err != ErrNotOpal {
		t.Errorf("err = %v, want ErrNotOpal", err)
	}
}

func mustEncode(t *testing.T, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		t.Fatalf("binary.Write: %v", err)
	}
	return buf.Bytes()
}

func TestFindComIDPrefersOpalV2OverOpalV1(t *testing.T) {
	d0 := &Level0Discovery{
		OpalV1: &feature.OpalV1{},
		OpalV2: &feature.OpalV2{CommonSSC: feature.CommonSSC{BaseComID: 0x1000}},
	}
	comID, proto, err := findComIDFromDiscovery(d0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comID != ComID(0x1000) {
		t.Errorf("comID = %#x, want 0x1000 (Opal V2 must win)", comID)
	}
	if proto != ProtocolLevelCore {
		t.Errorf("proto = %v, want ProtocolLevelCore", proto)
	}
}

func TestFindComIDPrefersOpalV2RegardlessOfFieldOrder(t *testing.T) {
	// Enterprise, then PyriteV2, then OpalV2 all present: OpalV2 must still
	// win because findComIDFromDiscovery applies it last, independent of
	// which fields were populated "first" during discovery.
	d0 := &Level0Discovery{
		Enterprise: &feature.Enterprise{CommonSSC: feature.CommonSSC{BaseComID: 0x2000}},
		PyriteV2:   &feature.PyriteV2{CommonSSC: feature.CommonSSC{BaseComID: 0x3000}},
		OpalV2:     &feature.OpalV2{CommonSSC: feature.CommonSSC{BaseComID: 0x4000}},
	}
	comID, _, err := findComIDFromDiscovery(d0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comID != ComID(0x4000) {
		t.Errorf("comID = %#x, want 0x4000 (Opal V2 must win over Enterprise and Pyrite V2)", comID)
	}
}

func TestFindComIDNoSSCIsNotOpal(t *testing.T) {
	if _, _, err := findComIDFromDiscovery(&Level0Discovery{}); err != ErrNotOpal {
		t.Errorf("err = %v, want ErrNotOpal", err)
	}
}

func TestFindComIDUsesOpalV1WhenNoOpalV2(t *testing.T) {
	d0 := &Level0Discovery{
		OpalV1: &feature.OpalV1{CommonSSC: feature.CommonSSC{BaseComID: 0x0800}},
	}
	comID, proto, err := findComIDFromDiscovery(d0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comID != ComID(0x0800) {
		t.Errorf("comID = %#x, want 0x0800 (Opal V1's own base ComID)", comID)
	}
	if proto != ProtocolLevelCore {
		t.Errorf("proto = %v, want ProtocolLevelCore", proto)
	}
}

func TestDiscovery0FailsTPMProbeWithoutTCGManagement(t *testing.T) {
	response := buildLevel0Response(t, []struct {
		Code    feature.FeatureCode
		Payload []byte
	}{
		{Code: feature.CodeOpalV2, Payload: mustEncode(t, feature.OpalV2{
			CommonSSC: feature.CommonSSC{BaseComID: 0x0800},
		})},
	})
	d := &probeOnlyDrive{
		probeResponse: securityProtocolsResponse(drive.SecurityProtocolTCGTPer),
		l0Response:    response,
	}
	if _, err := Discovery0(d); err != ErrNotOpal {
		t.Errorf("err = %v, want ErrNotOpal (protocol 0x01 not advertised)", err)
	}
}

// probeOnlyDrive lets a test give the TPM probe (protocol 0) and the Level-0
// discovery call (protocol 1) independent canned responses.
type probeOnlyDrive struct {
	probeResponse []byte
	l0Response    []byte
}

func (p *probeOnlyDrive) IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error {
	buf := make([]byte, len(*data))
	if proto == drive.SecurityProtocolInformation {
		copy(buf, p.probeResponse)
	} else {
		copy(buf, p.l0Response)
	}
	*data = buf
	return nil
}

func (p *probeOnlyDrive) IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error {
	return nil
}

func (p *probeOnlyDrive) Identify() (*drive.Identity, error) { return &drive.Identity{}, nil }
func (p *probeOnlyDrive) SerialNumber() ([]byte, error)      { return nil, nil }
func (p *probeOnlyDrive) Close() error                       { return nil }

func TestDeriveCapabilityOpalV1ForcesLBAAlignToOne(t *testing.T) {
	d0 := &Level0Discovery{
		Geometry: &feature.Geometry{LowestAlignedLBA: 8},
		OpalV1:   &feature.OpalV1{CommonSSC: feature.CommonSSC{BaseComID: 0x0800}},
	}
	c := DeriveCapability(d0)
	if !c.HasOpalV1 {
		t.Errorf("HasOpalV1 = false, want true")
	}
	if c.LBAAlign != 1 {
		t.Errorf("LBAAlign = %d, want 1 (Opal V1 overrides Geometry)", c.LBAAlign)
	}
	if c.ComID != ComID(0x0800) {
		t.Errorf("ComID = %#x, want 0x0800", c.ComID)
	}
}

func TestDeriveCapabilityOpalV2SetsAdminAndUserCounts(t *testing.T) {
	d0 := &Level0Discovery{
		OpalV2: &feature.OpalV2{
			CommonSSC:                  feature.CommonSSC{BaseComID: 0x1000},
			NumLockingSPAdminSupported: 4,
			NumLockingSPUserSupported:  8,
		},
	}
	c := DeriveCapability(d0)
	if !c.HasOpalV2 {
		t.Errorf("HasOpalV2 = false, want true")
	}
	if c.AdminCount != 4 || c.UserCount != 8 {
		t.Errorf("AdminCount/UserCount = %d/%d, want 4/8", c.AdminCount, c.UserCount)
	}
}
