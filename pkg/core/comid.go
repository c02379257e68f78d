// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"encoding/binary"
	"fmt"

	"github.com/opalhost/go-opal/pkg/drive"
)

// ComID identifies the synchronous protocol stack instance a session's
// method calls travel over.
type ComID int

type comIDRequest [4]byte

const (
	ComIDInvalid     ComID = -1
	ComIDDiscoveryL0 ComID = 1
)

var (
	comIDRequestVerify comIDRequest = [4]byte{0x00, 0x00, 0x00, 0x01}
	comIDRequestReset  comIDRequest = [4]byte{0x00, 0x00, 0x00, 0x02}
)

// GetComID requests an extended ComID from the TPer (IF-RECV protocol 0x02,
// function P0 - "get ComID").
func GetComID(d drive.DriveIntf) (ComID, error) {
	var buf [512]byte
	bufs := buf[:]
	if err := d.IFRecv(drive.SecurityProtocolTCGTPer, 0, &bufs); err != nil {
		return ComIDInvalid, err
	}
	c := binary.BigEndian.Uint16(buf[0:2])
	ce := binary.BigEndian.Uint16(buf[2:4])
	return ComID(uint32(c) + uint32(ce)<<16), nil
}

func handleComIDRequest(d drive.DriveIntf, comID ComID, req comIDRequest) ([]byte, error) {
	var buf [512]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(comID&0xffff))
	binary.BigEndian.PutUint16(buf[2:4], uint16((comID&0xffff0000)>>16))
	copy(buf[4:8], req[:])

	if err := d.IFSend(drive.SecurityProtocolTCGTPer, uint16(comID&0xffff), buf[:]); err != nil {
		return nil, err
	}
	buf = [512]byte{}
	bufs := buf[:]
	if err := d.IFRecv(drive.SecurityProtocolTCGTPer, uint16(comID&0xffff), &bufs); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint16(buf[10:12])
	return buf[12 : 12+size], nil
}

// IsComIDValid validates a ComID against the TPer.
func IsComIDValid(d drive.DriveIntf, comID ComID) (bool, error) {
	res, err := handleComIDRequest(d, comID, comIDRequestVerify)
	if err != nil {
		return false, err
	}
	if len(res) < 4 {
		return false, nil
	}
	state := binary.BigEndian.Uint32(res[0:4])
	return state == 2 || state == 3, nil
}

// StackReset resets the state of the synchronous protocol stack bound to a
// ComID. It is required after Level-0 discovery on Opal drives before a
// session can be started against them.
func StackReset(d drive.DriveIntf, comID ComID) error {
	res, err := handleComIDRequest(d, comID, comIDRequestReset)
	if err != nil {
		return err
	}
	if len(res) < 4 {
		return fmt.Errorf("stack reset is pending, retry is not implemented")
	}
	if success := binary.BigEndian.Uint32(res[0:4]); success != 0 {
		return fmt.Errorf("stack reset reported failure")
	}
	return nil
}

// FindComID picks the ComID and protocol level to run a session over.
// The Level-0 discovery record supplies the SSC-specific base ComID (when a
// drive advertises both Opal V1 and Opal V2 descriptors, the V2 ComID is
// taken regardless of wire order); if the drive then grants a ComID through
// GetComID, that auto-allocated ComID replaces the discovered one. When
// discovery finds no supported SSC, ErrNotOpal is returned without trying
// auto-allocation.
func FindComID(d drive.DriveIntf, d0 *Level0Discovery) (ComID, ProtocolLevel, error) {
	comID, proto, err := findComIDFromDiscovery(d0)
	if err != nil {
		return ComIDInvalid, ProtocolLevelUnknown, err
	}
	if autoComID, err := GetComID(d); err == nil && autoComID > 0 {
		comID = autoComID
	}
	return comID, proto, nil
}

// findComIDFromDiscovery picks the SSC-specific base ComID purely from a
// parsed Level0Discovery record, independent of any drive round trip. Split
// out from FindComID so the Opal V1/V2 overlap ordering can be tested
// without a fake transport.
func findComIDFromDiscovery(d0 *Level0Discovery) (ComID, ProtocolLevel, error) {
	comID := ComIDInvalid
	proto := ProtocolLevelUnknown

	if d0.Enterprise != nil {
		comID = ComID(d0.Enterprise.BaseComID)
		proto = ProtocolLevelEnterprise
	}
	if d0.RubyV1 != nil {
		comID = ComID(d0.RubyV1.BaseComID)
		proto = ProtocolLevelCore
	}
	if d0.PyriteV1 != nil {
		comID = ComID(d0.PyriteV1.BaseComID)
		proto = ProtocolLevelCore
	}
	if d0.PyriteV2 != nil {
		comID = ComID(d0.PyriteV2.BaseComID)
		proto = ProtocolLevelCore
	}
	if d0.OpalV1 != nil {
		comID = ComID(d0.OpalV1.BaseComID)
		proto = ProtocolLevelCore
	}
	// Opal V2 is applied last so it wins over any other SSC descriptor
	// present alongside it, matching the vendor behavior documented in
	// DESIGN.md's level-0 feature overlap resolution.
	if d0.OpalV2 != nil {
		comID = ComID(d0.OpalV2.BaseComID)
		proto = ProtocolLevelCore
	}

	if comID == ComIDInvalid {
		return ComIDInvalid, ProtocolLevelUnknown, ErrNotOpal
	}
	return comID, proto, nil
}
