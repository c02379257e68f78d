// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import "testing"

func TestUintOfUint(t *testing.T) {
	if got := uintOf(uint(42)); got != 42 {
		t.Errorf("uintOf(uint(42)) = %d, want 42", got)
	}
}

func TestUintOfBytesBigEndian(t *testing.T) {
	if got := uintOf([]byte{0x01, 0x00}); got != 256 {
		t.Errorf("uintOf([]byte{0x01,0x00}) = %d, want 256", got)
	}
}

func TestUintOfUnsupportedTypeIsZero(t *testing.T) {
	if got := uintOf("nope"); got != 0 {
		t.Errorf("uintOf(string) = %d, want 0", got)
	}
}

func TestBoolUint(t *testing.T) {
	if boolUint(true) != 1 {
		t.Errorf("boolUint(true) != 1")
	}
	if boolUint(false) != 0 {
		t.Errorf("boolUint(false) != 0")
	}
}
