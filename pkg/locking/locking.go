// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package locking provides a convenience wrapper over pkg/core/table for
// the day-to-day Opal workflow: take ownership, enumerate ranges, lock and
// unlock them, and manage the shadow MBR.
package locking

import (
	"fmt"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/table"
	"github.com/opalhost/go-opal/pkg/core/uid"
)

// Locking holds a control session plus optional Admin SP and Locking SP
// sessions. The workflow functions in this package take a
// *core.ControlSession directly and open their own sessions; none of them
// reads or sets these fields.
type Locking struct {
	cs   *core.ControlSession
	adm  *core.Session // Admin SP session; not set by this package
	lock *core.Session // Locking SP session; not set by this package
}

// Open wraps an already-negotiated ControlSession in a Locking.
func Open(cs *core.ControlSession) *Locking {
	return &Locking{cs: cs}
}

// TakeOwnership logs into the Admin SP as SID with the factory MSID PIN
// and sets a new SID PIN, the first step of provisioning a fresh drive.
func TakeOwnership(cs *core.ControlSession, newSIDPin []byte) error {
	admin, err := core.LoginAnon(cs, uid.AdminSP)
	if err != nil {
		return fmt.Errorf("TakeOwnership: %w", err)
	}
	defer admin.EndSession()

	msid, err := table.Admin_C_PIN_MSID_GetPIN(admin)
	if err != nil {
		return fmt.Errorf("TakeOwnership: %w", err)
	}

	sidSession, err := core.Login(cs, uid.AdminSP, uid.AuthoritySID, msid)
	if err != nil {
		return fmt.Errorf("TakeOwnership: %w", err)
	}
	defer sidSession.EndSession()

	if err := table.SetPIN(sidSession, uid.Admin_C_PIN_SIDRow, newSIDPin); err != nil {
		return fmt.Errorf("TakeOwnership: %w", err)
	}
	return nil
}

// Activate logs into the Admin SP as SID and activates the Locking SP,
// making its tables reachable for the first time.
func Activate(cs *core.ControlSession, sidPIN []byte) error {
	s, err := core.Login(cs, uid.AdminSP, uid.AuthoritySID, sidPIN)
	if err != nil {
		return fmt.Errorf("Activate: %w", err)
	}
	defer s.EndSession()
	if err := table.LockingSPActivate(s); err != nil {
		return fmt.Errorf("Activate: %w", err)
	}
	return nil
}

// Range is a snapshot of one Locking table row.
type Range struct {
	UID              uid.RowUID
	Start, Length    uint64
	ReadLockEnabled  bool
	WriteLockEnabled bool
	ReadLocked       bool
	WriteLocked      bool
}

// Ranges opens a new Locking SP session as authority with proof,
// then enumerates every configured locking range.
func Ranges(cs *core.ControlSession, authority uid.RowUID, proof []byte) ([]Range, error) {
	s, err := core.Login(cs, uid.LockingSP, authority, proof)
	if err != nil {
		return nil, fmt.Errorf("Ranges: %w", err)
	}
	defer s.EndSession()
	return fillRanges(s)
}

func fillRanges(s *core.Session) ([]Range, error) {
	var out []Range
	err := table.Locking_Enumerate(s, func(row uid.RowUID) bool {
		r, err := table.Locking_Get(s, row)
		if err != nil {
			return false
		}
		out = append(out, Range{
			UID:              r.UID,
			Start:            r.RangeStart,
			Length:           r.RangeLength,
			ReadLockEnabled:  r.ReadLockEnabled,
			WriteLockEnabled: r.WriteLockEnabled,
			ReadLocked:       r.ReadLocked,
			WriteLocked:      r.WriteLocked,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetLocked opens the Locking SP as authority and sets range's
// ReadLocked/WriteLocked columns.
func SetLocked(cs *core.ControlSession, authority uid.RowUID, proof []byte, rangeUID uid.RowUID, readLocked, writeLocked bool) error {
	s, err := core.Login(cs, uid.LockingSP, authority, proof)
	if err != nil {
		return fmt.Errorf("SetLocked: %w", err)
	}
	defer s.EndSession()

	if err := table.Locking_Set(s, rangeUID, 7, boolCol(readLocked)); err != nil {
		return fmt.Errorf("SetLocked: %w", err)
	}
	if err := table.Locking_Set(s, rangeUID, 8, boolCol(writeLocked)); err != nil {
		return fmt.Errorf("SetLocked: %w", err)
	}
	return nil
}

func boolCol(b bool) interface{} {
	if b {
		return uint(1)
	}
	return uint(0)
}

// SetMBRDone opens the Locking SP and flips the shadow MBR's Done flag,
// the signal that unlocks the real LBA range after a boot loader has run
// against the shadow image.
func SetMBRDone(cs *core.ControlSession, authority uid.RowUID, proof []byte, done bool) error {
	s, err := core.Login(cs, uid.LockingSP, authority, proof)
	if err != nil {
		return fmt.Errorf("SetMBRDone: %w", err)
	}
	defer s.EndSession()

	ctl, err := table.MBRControl_Get(s)
	if err != nil {
		return fmt.Errorf("SetMBRDone: %w", err)
	}
	if err := table.MBRControl_Set(s, ctl.Enable, done); err != nil {
		return fmt.Errorf("SetMBRDone: %w", err)
	}
	return nil
}

// WriteShadowMBR uploads a boot-loader image into the shadow MBR table and
// enables MBR shadowing, so the TPer serves image in place of the real LBA
// range's first sectors until the caller later calls SetMBRDone. image must
// not exceed the MBR table's row size, reported by table.MBR_TableInfo.
func WriteShadowMBR(cs *core.ControlSession, authority uid.RowUID, proof []byte, image []byte) error {
	s, err := core.Login(cs, uid.LockingSP, authority, proof)
	if err != nil {
		return fmt.Errorf("WriteShadowMBR: %w", err)
	}
	defer s.EndSession()

	info, err := table.MBR_TableInfo(s)
	if err != nil {
		return fmt.Errorf("WriteShadowMBR: %w", err)
	}
	if uint(len(image)) > info.RowBytes {
		return fmt.Errorf("WriteShadowMBR: image is %d bytes, exceeds MBR table size of %d bytes", len(image), info.RowBytes)
	}

	if err := table.MBR_Write(s, 0, image); err != nil {
		return fmt.Errorf("WriteShadowMBR: %w", err)
	}
	if err := table.MBRControl_Set(s, true, false); err != nil {
		return fmt.Errorf("WriteShadowMBR: %w", err)
	}
	return nil
}

// Erase reverts the Locking SP to its factory state, cryptographically
// destroying every locking range's key material. The Admin SP itself is
// untouched: ownership and the SID PIN survive.
func Erase(cs *core.ControlSession, sidPIN []byte) error {
	s, err := core.Login(cs, uid.LockingSP, uid.AuthoritySID, sidPIN)
	if err != nil {
		return fmt.Errorf("Erase: %w", err)
	}
	if err := s.Revert(); err != nil {
		return fmt.Errorf("Erase: %w", err)
	}
	return nil
}
