// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import (
	"fmt"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/uid"
)

// ThisSP_Random requests count bytes of TPer-generated randomness, used to
// derive fresh Locking Range keys client-side before a GenKey/rekey call.
func ThisSP_Random(s *core.Session, count uint) ([]byte, error) {
	result, err := s.ExecuteMethod(uid.InvokeIDThisSP, uid.MethodIDRandom, func(mc *core.MethodCall) {
		mc.StartList().UInt(count).EndList()
	})
	if err != nil {
		return nil, fmt.Errorf("ThisSP_Random: %w", err)
	}
	if len(result) == 0 {
		return nil, core.ErrEmptyMethodResponse
	}
	b, ok := result[0].([]byte)
	if !ok {
		return nil, core.ErrMalformedMethodResponse
	}
	return b, nil
}

// ThisSP_Authenticate authenticates authority within the current session
// using proof (typically a PIN's raw bytes), returning whether it
// succeeded.
func ThisSP_Authenticate(s *core.Session, authority uid.RowUID, proof []byte) (bool, error) {
	result, err := s.ExecuteMethod(uid.InvokeIDThisSP, uid.MethodIDAuthenticate, func(mc *core.MethodCall) {
		mc.StartList()
		mc.RowUID(authority)
		mc.Bytes(proof)
		mc.EndList()
	})
	if err != nil {
		return false, fmt.Errorf("ThisSP_Authenticate: %w", err)
	}
	if len(result) == 0 {
		return false, nil
	}
	v, ok := result[0].(uint)
	return ok && v != 0, nil
}
