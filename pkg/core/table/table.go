// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package table provides generic Get/Set/Next access to TCG Storage Core
// tables, on top of a core.Session.
package table

import (
	"fmt"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/stream"
	"github.com/opalhost/go-opal/pkg/core/uid"
)

// Cell block optional-parameter identifiers (Core SSC numeric form).
const (
	cellBlockStartRow    uint = 1
	cellBlockEndRow      uint = 2
	cellBlockStartColumn uint = 3
	cellBlockEndColumn   uint = 4
)

// GetCell reads a single column of row and returns it as raw bytes,
// regardless of whether the underlying atom was a Uint or Bytes atom.
func GetCell(s *core.Session, row uid.RowUID, column uint) ([]byte, error) {
	result, err := s.ExecuteMethod(uid.InvokingID(row), uid.MethodIDGet, func(mc *core.MethodCall) {
		mc.StartList()
		mc.StartOptionalParameter(cellBlockStartColumn, "startColumn").UInt(column).EndOptionalParameter()
		mc.StartOptionalParameter(cellBlockEndColumn, "endColumn").UInt(column).EndOptionalParameter()
		mc.EndList()
	})
	if err != nil {
		return nil, fmt.Errorf("Get(%x, col %d): %w", row, column, err)
	}
	return firstCellValue(result)
}

// GetPartialRow reads columns [start, end] of row, returning a map keyed
// by column index.
func GetPartialRow(s *core.Session, row uid.RowUID, start, end uint) (map[uint]interface{}, error) {
	result, err := s.ExecuteMethod(uid.InvokingID(row), uid.MethodIDGet, func(mc *core.MethodCall) {
		mc.StartList()
		mc.StartOptionalParameter(cellBlockStartColumn, "startColumn").UInt(start).EndOptionalParameter()
		mc.StartOptionalParameter(cellBlockEndColumn, "endColumn").UInt(end).EndOptionalParameter()
		mc.EndList()
	})
	if err != nil {
		return nil, fmt.Errorf("Get(%x, %d..%d): %w", row, start, end, err)
	}
	return parseRowValues(result)
}

// GetFullRow reads every column of row.
func GetFullRow(s *core.Session, row uid.RowUID) (map[uint]interface{}, error) {
	result, err := s.ExecuteMethod(uid.InvokingID(row), uid.MethodIDGet, func(mc *core.MethodCall) {
		mc.StartList().EndList()
	})
	if err != nil {
		return nil, fmt.Errorf("Get(%x): %w", row, err)
	}
	return parseRowValues(result)
}

// Enumerate walks table via repeated Next calls, invoking visit for each
// row UID until visit returns false or the table is exhausted.
func Enumerate(s *core.Session, table uid.TableUID, visit func(uid.RowUID) bool) error {
	var last []byte
	for {
		result, err := s.ExecuteMethod(uid.InvokingID(objectFor(table)), uid.MethodIDNext, func(mc *core.MethodCall) {
			mc.StartList()
			if last != nil {
				mc.StartName().Bytes([]byte("where")).Bytes(last).EndName()
			}
			mc.EndList()
		})
		if err != nil {
			return fmt.Errorf("Next(%x): %w", table, err)
		}
		rows := extractRowList(result)
		if len(rows) == 0 {
			return nil
		}
		for _, r := range rows {
			var row uid.RowUID
			copy(row[:], r)
			if !visit(row) {
				return nil
			}
			last = r
		}
	}
}

// NewSetCall begins a Set invocation against row: Set[ Named{1, [ ... ]} ],
// with the argument list still open for column Named pairs to be appended.
func NewSetCall(row uid.RowUID, proto core.ProtocolLevel) *core.MethodCall {
	mc := core.NewMethodCall(uid.InvokingID(row), uid.MethodIDSet, proto)
	mc.StartList()
	mc.StartOptionalParameter(1, "Values")
	mc.StartList()
	return mc
}

// FinishSetCall closes the Values list and Named pair a NewSetCall opened.
func FinishSetCall(mc *core.MethodCall) {
	mc.EndList()
	mc.EndOptionalParameter()
	mc.EndList()
}

// SetColumn sets a single column of row to v, where v is a uint or []byte.
func SetColumn(s *core.Session, row uid.RowUID, column uint, v interface{}) error {
	mc := NewSetCall(row, s.Proto())
	mc.StartName().UInt(column)
	switch val := v.(type) {
	case uint:
		mc.UInt(val)
	case []byte:
		mc.Bytes(val)
	default:
		return fmt.Errorf("table: unsupported column value type %T", v)
	}
	mc.EndName()
	FinishSetCall(mc)
	if _, err := s.Invoke(mc); err != nil {
		return fmt.Errorf("Set(%x, col %d): %w", row, column, err)
	}
	return nil
}

func objectFor(t uid.TableUID) uid.RowUID {
	return uid.RowUID(t)
}

func firstCellValue(result stream.List) ([]byte, error) {
	values, err := parseRowValues(result)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		switch t := v.(type) {
		case []byte:
			return t, nil
		case uint:
			return stream.UInt(t), nil
		}
	}
	return nil, core.ErrMalformedMethodResponse
}

// parseRowValues walks a Get() result (a single-element list wrapping a
// list of Name/Value pairs) into a column-index-keyed map.
func parseRowValues(result stream.List) (map[uint]interface{}, error) {
	out := map[uint]interface{}{}
	if len(result) == 0 {
		return out, nil
	}
	outer, ok := result[0].(stream.List)
	if !ok {
		return nil, core.ErrMalformedMethodResponse
	}
	for _, item := range outer {
		pair, ok := item.(stream.List)
		if !ok || len(pair) != 2 {
			continue
		}
		col, ok := pair[0].(uint)
		if !ok {
			continue
		}
		out[col] = pair[1]
	}
	return out, nil
}

func extractRowList(result stream.List) [][]byte {
	var rows [][]byte
	if len(result) == 0 {
		return rows
	}
	outer, ok := result[0].(stream.List)
	if !ok {
		return rows
	}
	for _, item := range outer {
		if b, ok := item.([]byte); ok {
			rows = append(rows, b)
		}
	}
	return rows
}
