// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import (
	"testing"

	"github.com/opalhost/go-opal/pkg/core/stream"
)

func TestParseRowValues(t *testing.T) {
	result := stream.List{
		stream.List{
			stream.List{uint(3), []byte("start")},
			stream.List{uint(4), uint(128)},
		},
	}
	cols, err := parseRowValues(result)
	if err != nil {
		t.Fatalf("parseRowValues: %v", err)
	}
	if string(cols[3].([]byte)) != "start" {
		t.Errorf("cols[3] = %v, want []byte(\"start\")", cols[3])
	}
	if cols[4].(uint) != 128 {
		t.Errorf("cols[4] = %v, want 128", cols[4])
	}
}

func TestParseRowValuesEmptyResult(t *testing.T) {
	cols, err := parseRowValues(stream.List{})
	if err != nil {
		t.Fatalf("parseRowValues: %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("cols = %v, want empty", cols)
	}
}

func TestFirstCellValuePrefersBytes(t *testing.T) {
	result := stream.List{
		stream.List{
			stream.List{uint(0), []byte("payload")},
		},
	}
	b, err := firstCellValue(result)
	if err != nil {
		t.Fatalf("firstCellValue: %v", err)
	}
	if string(b) != "payload" {
		t.Errorf("firstCellValue = %q, want %q", b, "payload")
	}
}

func TestFirstCellValueEncodesUint(t *testing.T) {
	result := stream.List{
		stream.List{
			stream.List{uint(0), uint(7)},
		},
	}
	b, err := firstCellValue(result)
	if err != nil {
		t.Fatalf("firstCellValue: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("firstCellValue returned empty bytes for a uint cell")
	}
}

func TestExtractRowList(t *testing.T) {
	result := stream.List{
		stream.List{
			[]byte{0x01, 0x02},
			[]byte{0x03, 0x04},
		},
	}
	rows := extractRowList(result)
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want 2 entries", rows)
	}
}

func TestExtractRowListNoMoreRows(t *testing.T) {
	if rows := extractRowList(stream.List{stream.List{}}); len(rows) != 0 {
		t.Errorf("rows = %v, want empty", rows)
	}
}
