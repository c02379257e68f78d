// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import (
	"fmt"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/uid"
)

// Admin_TPerInfo holds the two TPerInfo columns Admin_TPerInfoRow reads:
// column 0 as ProgramID and column 1 as MaxOtherSPSessions.
type Admin_TPerInfo struct {
	ProgramID          []byte
	MaxOtherSPSessions uint
}

// Admin_TPerInfoRow reads the AdminSP TPerInfo object.
func Admin_TPerInfoRow(s *core.Session) (*Admin_TPerInfo, error) {
	row, err := GetFullRow(s, uid.Admin_TPerInfoObj)
	if err != nil {
		return nil, fmt.Errorf("Admin_TPerInfoRow: %w", err)
	}
	info := &Admin_TPerInfo{}
	if v, ok := row[0].([]byte); ok {
		info.ProgramID = v
	}
	if v, ok := row[1].(uint); ok {
		info.MaxOtherSPSessions = v
	}
	return info, nil
}

// Admin_C_PIN_MSID_GetPIN reads the manufacturer-set factory PIN row,
// the credential every drive accepts before it has been provisioned.
func Admin_C_PIN_MSID_GetPIN(s *core.Session) ([]byte, error) {
	pin, err := GetCell(s, uid.Admin_C_PIN_MSIDRow, 3)
	if err != nil {
		return nil, fmt.Errorf("Admin_C_PIN_MSID_GetPIN: %w", err)
	}
	return pin, nil
}

// DefaultPIN returns the manufacturer-set factory PIN, an alias of
// Admin_C_PIN_MSID_GetPIN kept for callers thinking in terms of "the PIN a
// freshly manufactured drive ships with" rather than the row it lives in.
func DefaultPIN(s *core.Session) ([]byte, error) {
	return Admin_C_PIN_MSID_GetPIN(s)
}

// Admin_SP_GetLifeCycleState reports the Admin SP's LifeCycleState column,
// which distinguishes a manufactured-inactive drive from an activated one.
func Admin_SP_GetLifeCycleState(s *core.Session, sp uid.RowUID) (uint, error) {
	v, err := GetCell(s, sp, 6)
	if err != nil {
		return 0, fmt.Errorf("Admin_SP_GetLifeCycleState: %w", err)
	}
	if len(v) == 0 {
		return 0, nil
	}
	var n uint
	for _, b := range v {
		n = n<<8 | uint(b)
	}
	return n, nil
}
