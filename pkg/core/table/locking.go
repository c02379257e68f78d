// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import (
	"fmt"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/uid"
)

// LockingInfo mirrors the Locking SP's LockingInfo object: overall
// locking capability and the number of ranges the drive supports.
type LockingInfo struct {
	MaxRanges uint
	Encrypt   bool
}

// LockingInfoRow reads the Locking_LockingInfo object.
func LockingInfoRow(s *core.Session) (*LockingInfo, error) {
	cols, err := GetFullRow(s, uid.LockingInfoObj)
	if err != nil {
		return nil, fmt.Errorf("LockingInfoRow: %w", err)
	}
	info := &LockingInfo{}
	if v, ok := cols[4].(uint); ok {
		info.MaxRanges = v
	}
	return info, nil
}

// LockingSPActivate activates the Locking SP from the Admin SP session,
// the step that makes the Locking SP's tables reachable.
func LockingSPActivate(s *core.Session) error {
	_, err := s.ExecuteMethod(uid.InvokingID(uid.LockingSP), uid.MethodIDActivate, func(mc *core.MethodCall) {
		mc.StartList().EndList()
	})
	if err != nil {
		return fmt.Errorf("LockingSPActivate: %w", err)
	}
	return nil
}

// LockingRow is a single Locking table row: one locking range's state.
type LockingRow struct {
	UID              uid.RowUID
	Name             string
	RangeStart       uint64
	RangeLength      uint64
	ReadLockEnabled  bool
	WriteLockEnabled bool
	ReadLocked       bool
	WriteLocked      bool
}

const (
	colRangeStart       = 3
	colRangeLength      = 4
	colReadLockEnabled  = 5
	colWriteLockEnabled = 6
	colReadLocked       = 7
	colWriteLocked      = 8
)

// Locking_Get reads one Locking table row's full state.
func Locking_Get(s *core.Session, row uid.RowUID) (*LockingRow, error) {
	cols, err := GetFullRow(s, row)
	if err != nil {
		return nil, fmt.Errorf("Locking_Get(%x): %w", row, err)
	}
	r := &LockingRow{UID: row}
	r.RangeStart = uintOf(cols[colRangeStart])
	r.RangeLength = uintOf(cols[colRangeLength])
	r.ReadLockEnabled = uintOf(cols[colReadLockEnabled]) != 0
	r.WriteLockEnabled = uintOf(cols[colWriteLockEnabled]) != 0
	r.ReadLocked = uintOf(cols[colReadLocked]) != 0
	r.WriteLocked = uintOf(cols[colWriteLocked]) != 0
	return r, nil
}

// Locking_Enumerate visits every row of the Locking table.
func Locking_Enumerate(s *core.Session, visit func(uid.RowUID) bool) error {
	return Enumerate(s, uid.Locking_LockingTable, visit)
}

// Locking_Set writes one boolean/uint column of a Locking row.
func Locking_Set(s *core.Session, row uid.RowUID, column uint, v interface{}) error {
	if err := SetColumn(s, row, column, v); err != nil {
		return fmt.Errorf("Locking_Set(%x, col %d): %w", row, column, err)
	}
	return nil
}

// ConfigureLockingRange sets a range's boundaries and lock-enable flags in
// a single Set invocation.
func ConfigureLockingRange(s *core.Session, row uid.RowUID, start, length uint64, readLockEnabled, writeLockEnabled bool) error {
	mc := NewSetCall(row, s.Proto())
	mc.StartName().UInt(colRangeStart).UInt(uint(start)).EndName()
	mc.StartName().UInt(colRangeLength).UInt(uint(length)).EndName()
	mc.StartName().UInt(colReadLockEnabled).UInt(boolUint(readLockEnabled)).EndName()
	mc.StartName().UInt(colWriteLockEnabled).UInt(boolUint(writeLockEnabled)).EndName()
	FinishSetCall(mc)
	if _, err := s.Invoke(mc); err != nil {
		return fmt.Errorf("ConfigureLockingRange(%x): %w", row, err)
	}
	return nil
}

// Admin_C_Pin_Admin1_SetPIN sets the Locking SP's Admin1 authority PIN.
func Admin_C_Pin_Admin1_SetPIN(s *core.Session, newPIN []byte) error {
	return SetPIN(s, uid.Admin_C_PIN_Admin1Row, newPIN)
}

// MBRControl mirrors the Locking SP's MBRControl object.
type MBRControl struct {
	Enable bool
	Done   bool
}

// MBRControl_Get reads the current shadow-MBR control state.
func MBRControl_Get(s *core.Session) (*MBRControl, error) {
	cols, err := GetFullRow(s, uid.MBRControlObj)
	if err != nil {
		return nil, fmt.Errorf("MBRControl_Get: %w", err)
	}
	return &MBRControl{
		Enable: uintOf(cols[0]) != 0,
		Done:   uintOf(cols[1]) != 0,
	}, nil
}

// MBRControl_Set toggles the shadow MBR's Enable and Done columns.
func MBRControl_Set(s *core.Session, enable, done bool) error {
	mc := NewSetCall(uid.MBRControlObj, s.Proto())
	mc.StartName().UInt(0).UInt(boolUint(enable)).EndName()
	mc.StartName().UInt(1).UInt(boolUint(done)).EndName()
	FinishSetCall(mc)
	if _, err := s.Invoke(mc); err != nil {
		return fmt.Errorf("MBRControl_Set: %w", err)
	}
	return nil
}

// MBRTableInfo describes the MBR table's total row size, the size of the
// shadow MBR image itself (distinct from the transmission chunk size
// MBR_Write derives from the negotiated ComPacket ceiling).
type MBRTableInfo struct {
	RowBytes uint
}

// MBR_TableInfo reads the MBR table's descriptor row from the Table table.
func MBR_TableInfo(s *core.Session) (*MBRTableInfo, error) {
	cols, err := GetFullRow(s, uid.Base_TableRowForTable(uid.Locking_MBRTable))
	if err != nil {
		return nil, fmt.Errorf("MBR_TableInfo: %w", err)
	}
	return &MBRTableInfo{RowBytes: uintOf(cols[7])}, nil
}

// MBR_Read reads length bytes of the shadow MBR image starting at offset.
func MBR_Read(s *core.Session, offset, length uint) ([]byte, error) {
	result, err := s.ExecuteMethod(uid.InvokingID(uid.Locking_MBRTable), uid.MethodIDGet, func(mc *core.MethodCall) {
		mc.StartList()
		mc.StartOptionalParameter(cellBlockStartRow, "startRow").UInt(offset).EndOptionalParameter()
		mc.StartOptionalParameter(cellBlockEndRow, "endRow").UInt(offset + length - 1).EndOptionalParameter()
		mc.EndList()
	})
	if err != nil {
		return nil, fmt.Errorf("MBR_Read: %w", err)
	}
	b, err := firstCellValue(result)
	if err != nil {
		return nil, fmt.Errorf("MBR_Read: %w", err)
	}
	return b, nil
}

// mbrChunkAlignment is the block size every shadow-MBR write chunk (except
// possibly the last) must be a multiple of.
const mbrChunkAlignment = 4096

// mbrEnvelopeOverhead approximates the ComPacket/Packet/SubPacket header
// bytes plus the Set method's own token framing that share the ComPacket
// with each chunk's payload.
const mbrEnvelopeOverhead = 96

// mbrWriteChunkSize computes the largest 4096-aligned chunk that fits
// within a negotiated ComPacket ceiling once the envelope overhead is
// subtracted, per the binary Table Set chunking rule. When the ceiling
// leaves room for less than one 4096-byte block, it still returns 4096,
// and such a chunk does not fit.
func mbrWriteChunkSize(maxComPacketSize uint) uint {
	avail := maxComPacketSize
	if avail > mbrEnvelopeOverhead {
		avail -= mbrEnvelopeOverhead
	} else {
		avail = 0
	}
	chunk := (avail / mbrChunkAlignment) * mbrChunkAlignment
	if chunk == 0 {
		chunk = mbrChunkAlignment
	}
	return chunk
}

// MBR_Write writes data into the shadow MBR image starting at offset. Per
// the binary Table Set chunking rule, each transmission is sized by
// mbrWriteChunkSize from the negotiated max_com_pkt_size minus envelope
// overhead and is a multiple of 4096 bytes, except possibly the final,
// remainder chunk.
// Offsets advance by the bytes actually sent in each chunk.
func MBR_Write(s *core.Session, offset uint, data []byte) error {
	chunk := mbrWriteChunkSize(s.MaxComPacketSize())
	for written := uint(0); written < uint(len(data)); written += chunk {
		end := written + chunk
		if end > uint(len(data)) {
			end = uint(len(data))
		}
		_, err := s.ExecuteMethod(uid.InvokingID(uid.Locking_MBRTable), uid.MethodIDSet, func(mc *core.MethodCall) {
			mc.StartList()
			mc.StartOptionalParameter(0, "startRow").UInt(offset + written).EndOptionalParameter()
			mc.StartOptionalParameter(1, "values").Bytes(data[written:end]).EndOptionalParameter()
			mc.EndList()
		})
		if err != nil {
			return fmt.Errorf("MBR_Write(offset %d): %w", offset+written, err)
		}
	}
	return nil
}

func uintOf(v interface{}) uint64 {
	switch t := v.(type) {
	case uint:
		return uint64(t)
	case []byte:
		var n uint64
		for _, b := range t {
			n = n<<8 | uint64(b)
		}
		return n
	default:
		return 0
	}
}

func boolUint(b bool) uint {
	if b {
		return 1
	}
	return 0
}
