// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported            = errors.New("device does not support TCG Storage Core")
	ErrNotOpal                 = errors.New("device does not advertise Opal V1 or V2 support")
	ErrDiscoveryFailed         = errors.New("level-0 discovery failed")
	ErrTooLargeComPacket       = errors.New("ComPacket exceeds the negotiated maximum size")
	ErrTooLargePacket          = errors.New("Packet exceeds the negotiated maximum size")
	ErrEnvelopeMismatch        = errors.New("received envelope does not match the expected ComID or session")
	ErrEnvelopeOversize        = errors.New("outgoing ComPacket would exceed the negotiated max_com_pkt_size")
	ErrTimeout                 = errors.New("timed out waiting for a response")
	ErrMalformedMethodResponse = errors.New("method response was malformed")
	ErrEmptyMethodResponse     = errors.New("method response was empty")
	ErrMethodListUnbalanced    = errors.New("method argument list is unbalanced")
	ErrSessionRequired         = errors.New("operation requires an active session")
	ErrInvalidUID              = errors.New("value is not a valid 8-byte UID atom")

	MethodStatusSuccess uint = 0x00

	methodStatusText = map[uint]string{
		0x00: "SUCCESS",
		0x01: "NOT_AUTHORIZED",
		0x03: "SP_BUSY",
		0x04: "SP_FAILED",
		0x05: "SP_DISABLED",
		0x06: "SP_FROZEN",
		0x07: "NO_SESSIONS_AVAILABLE",
		0x08: "UNIQUENESS_CONFLICT",
		0x09: "INSUFFICIENT_SPACE",
		0x0A: "INSUFFICIENT_ROWS",
		0x0C: "INVALID_PARAMETER",
		0x0F: "TPER_MALFUNCTION",
		0x10: "TRANSACTION_FAILURE",
		0x11: "RESPONSE_OVERFLOW",
		0x12: "AUTHORITY_LOCKED_OUT",
		0x3F: "FAIL",
	}
)

// MethodFailedError reports a non-zero status code returned in the trailing
// status list of a method invocation.
type MethodFailedError struct {
	Code uint
}

func (e *MethodFailedError) Error() string {
	if s, ok := methodStatusText[e.Code]; ok {
		return fmt.Sprintf("method returned status 0x%02x (%s)", e.Code, s)
	}
	return fmt.Sprintf("method returned status 0x%02x", e.Code)
}
