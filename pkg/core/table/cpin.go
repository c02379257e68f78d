// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import (
	"fmt"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/uid"
)

// CPINInfo is a single C_PIN table row: an authority's credential and its
// bookkeeping columns.
type CPINInfo struct {
	UID          uid.RowUID
	CharSet      []byte
	TryLimit     uint
	Tries        uint
	Persistence  bool
	PIN          []byte
}

// CPINInfoRow reads a full C_PIN row and fills PIN from column 3, TryLimit
// from column 4 and Tries from column 5; CharSet and Persistence are left
// unset.
func CPINInfoRow(s *core.Session, row uid.RowUID) (*CPINInfo, error) {
	cols, err := GetFullRow(s, row)
	if err != nil {
		return nil, fmt.Errorf("CPINInfoRow(%x): %w", row, err)
	}
	info := &CPINInfo{UID: row}
	if v, ok := cols[3].([]byte); ok {
		info.PIN = v
	}
	if v, ok := cols[4].(uint); ok {
		info.TryLimit = v
	}
	if v, ok := cols[5].(uint); ok {
		info.Tries = v
	}
	return info, nil
}

// SetPIN overwrites an authority's C_PIN row (column 3) with newPIN.
func SetPIN(s *core.Session, row uid.RowUID, newPIN []byte) error {
	if err := SetColumn(s, row, 3, newPIN); err != nil {
		return fmt.Errorf("SetPIN(%x): %w", row, err)
	}
	return nil
}
