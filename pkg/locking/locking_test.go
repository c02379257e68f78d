// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locking

import "testing"

func TestBoolColEncodesAsUint(t *testing.T) {
	if v := boolCol(true); v.(uint) != 1 {
		t.Errorf("boolCol(true) = %v, want uint(1)", v)
	}
	if v := boolCol(false); v.(uint) != 0 {
		t.Errorf("boolCol(false) = %v, want uint(0)", v)
	}
}
