// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/opalhost/go-opal/pkg/core/feature"
	"github.com/opalhost/go-opal/pkg/drive"
)

// ProtocolLevel selects which method-call conventions a session speaks:
// the Core V2.0 (Opal/Pyrite/Ruby) uinteger-indexed style, or the older
// Enterprise SSC's ASCII-column-name style.
type ProtocolLevel int

const (
	ProtocolLevelUnknown ProtocolLevel = iota
	ProtocolLevelCore
	ProtocolLevelEnterprise
)

// Level0Discovery is the parsed response to a Level-0 SP_SPECIFIC_DISCOVERY
// (IF-RECV protocol 0x01) request: the set of feature descriptors the TPer
// advertises before any session exists.
type Level0Discovery struct {
	MajorVersion int
	MinorVersion int
	VendorSpecific []byte

	TPer                            *feature.TPer
	Locking                         *feature.Locking
	Geometry                        *feature.Geometry
	SecureMsg                       *feature.SecureMsg
	Enterprise                      *feature.Enterprise
	OpalV1                          *feature.OpalV1
	SingleUser                      *feature.SingleUser
	DataStore                       *feature.DataStore
	OpalV2                          *feature.OpalV2
	Opalite                         *feature.Opalite
	PyriteV1                        *feature.PyriteV1
	PyriteV2                        *feature.PyriteV2
	RubyV1                          *feature.RubyV1
	LockingLBA                      *feature.LockingLBA
	BlockSID                        *feature.BlockSID
	NamespaceLocking                *feature.NamespaceLocking
	DataRemoval                     *feature.DataRemoval
	NamespaceGeometry               *feature.NamespaceGeometry
	ShadowMBRForMultipleNamespaces  *feature.ShadowMBRForMultipleNamespaces
	SeagatePorts                    *feature.SeagatePorts

	UnknownFeatures []feature.FeatureCode
}

type l0Header struct {
	Length         uint32
	MajorVersion   uint16
	MinorVersion   uint16
	_              [8]byte
}

type featureHeader struct {
	Code    feature.FeatureCode
	Version uint8
	Length  uint8
}

// Discovery0 probes the drive's supported security protocols, then performs
// Level-0 discovery (IF-RECV protocol 0x01, ComID 1) and parses every
// feature descriptor the TPer returns.
func Discovery0(d drive.DriveIntf) (*Level0Discovery, error) {
	protos, err := drive.SecurityProtocols(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}
	supported := false
	for _, p := range protos {
		if p == drive.SecurityProtocolTCGManagement {
			supported = true
			break
		}
	}
	if !supported {
		return nil, ErrNotOpal
	}

	raw := make([]byte, 2048)
	if err := d.IFRecv(drive.SecurityProtocolTCGManagement, uint16(ComIDDiscoveryL0), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}

	buf := bytes.NewBuffer(raw)
	var hdr l0Header
	if err := binary.Read(buf, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}
	if hdr.Length == 0 {
		return nil, ErrNotSupported
	}

	d0 := &Level0Discovery{
		MajorVersion: int(hdr.MajorVersion),
		MinorVersion: int(hdr.MinorVersion),
	}

	// hdr.Length counts everything after the Length field itself; we've
	// already consumed MajorVersion/MinorVersion/reserved (12 bytes).
	remaining := int(hdr.Length) - 12
	for remaining > 0 {
		var fhdr featureHeader
		if err := binary.Read(buf, binary.BigEndian, &fhdr); err != nil {
			break
		}
		remaining -= 4 + int(fhdr.Length)
		body := make([]byte, fhdr.Length)
		if _, err := buf.Read(body); err != nil {
			return nil, fmt.Errorf("%w: truncated feature body: %v", ErrDiscoveryFailed, err)
		}
		frdr := bytes.NewReader(body)

		switch fhdr.Code {
		case feature.CodeTPer:
			d0.TPer, _ = feature.ReadTPerFeature(frdr)
		case feature.CodeLocking:
			d0.Locking, _ = feature.ReadLockingFeature(frdr)
		case feature.CodeGeometry:
			d0.Geometry, _ = feature.ReadGeometryFeature(frdr)
		case feature.CodeSecureMsg:
			d0.SecureMsg, _ = feature.ReadSecureMsgFeature(frdr)
		case feature.CodeEnterprise:
			d0.Enterprise, _ = feature.ReadEnterpriseFeature(frdr)
		case feature.CodeOpalV1:
			d0.OpalV1, _ = feature.ReadOpalV1Feature(frdr)
		case feature.CodeSingleUser:
			d0.SingleUser, _ = feature.ReadSingleUserFeature(frdr)
		case feature.CodeDataStore:
			d0.DataStore, _ = feature.ReadDataStoreFeature(frdr)
		case feature.CodeOpalV2:
			d0.OpalV2, _ = feature.ReadOpalV2Feature(frdr)
		case feature.CodeOpalite:
			d0.Opalite, _ = feature.ReadOpaliteFeature(frdr)
		case feature.CodePyriteV1:
			d0.PyriteV1, _ = feature.ReadPyriteV1Feature(frdr)
		case feature.CodePyriteV2:
			d0.PyriteV2, _ = feature.ReadPyriteV2Feature(frdr)
		case feature.CodeRubyV1:
			d0.RubyV1, _ = feature.ReadRubyV1Feature(frdr)
		case feature.CodeLockingLBA:
			d0.LockingLBA, _ = feature.ReadLockingLBAFeature(frdr)
		case feature.CodeBlockSID:
			d0.BlockSID, _ = feature.ReadBlockSIDFeature(frdr)
		case feature.CodeNamespaceLocking:
			d0.NamespaceLocking, _ = feature.ReadNamespaceLockingFeature(frdr)
		case feature.CodeDataRemoval:
			d0.DataRemoval, _ = feature.ReadDataRemovalFeature(frdr)
		case feature.CodeNamespaceGeometry:
			d0.NamespaceGeometry, _ = feature.ReadNamespaceGeometryFeature(frdr)
		case feature.CodeShadowMBRForMultipleNamespaces:
			d0.ShadowMBRForMultipleNamespaces, _ = feature.ReadShadowMBRForMultipleNamespacesFeature(frdr)
		case feature.CodeSeagatePorts:
			d0.SeagatePorts, _ = feature.ReadSeagatePorts(frdr)
		default:
			d0.UnknownFeatures = append(d0.UnknownFeatures, fhdr.Code)
		}
	}

	if d0.OpalV1 == nil && d0.OpalV2 == nil {
		return d0, ErrNotOpal
	}
	return d0, nil
}

// Capability is the drive capability record derived once at attach time:
// which SSC variant the drive advertised, the ComID/LBA alignment it
// requires, the negotiated ComPacket ceiling, and the Locking SP's
// authority counts. Treated as read-only once a ControlSession exists.
type Capability struct {
	HasOpalV1        bool
	HasOpalV2        bool
	ComID            ComID
	LBAAlign         uint64
	MaxComPacketSize uint32
	AdminCount       uint16
	UserCount        uint16
}

// DeriveCapability builds the drive capability record from a Level-0
// discovery result. MaxComPacketSize is left at zero; NewControlSession
// fills it in once Properties negotiation (Level-1 discovery) completes.
func DeriveCapability(d0 *Level0Discovery) Capability {
	c := Capability{}
	if d0.Geometry != nil {
		c.LBAAlign = d0.Geometry.LowestAlignedLBA
	}
	if d0.OpalV1 != nil {
		c.HasOpalV1 = true
		// Opal 1.0 doesn't work on large sector drives; its presence
		// always forces LBA alignment back to 1 regardless of what
		// Geometry reported.
		c.LBAAlign = 1
	}
	if d0.RubyV1 != nil {
		c.AdminCount = d0.RubyV1.NumLockingSPAdminSupported
		c.UserCount = d0.RubyV1.NumLockingSPUserSupported
	}
	if d0.OpalV2 != nil {
		c.HasOpalV2 = true
		c.AdminCount = d0.OpalV2.NumLockingSPAdminSupported
		c.UserCount = d0.OpalV2.NumLockingSPUserSupported
	}
	if comID, _, err := findComIDFromDiscovery(d0); err == nil {
		c.ComID = comID
	} else {
		c.ComID = ComIDInvalid
	}
	return c
}
