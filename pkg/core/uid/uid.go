// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uid holds the well-known object, table, method and authority
// UIDs defined by the TCG Storage Core and Opal SSC specifications.
package uid

// RowUID identifies a row within a table; TableUID identifies the table
// object itself. Both are 8-byte values transmitted as Short Bytes atoms.
type RowUID [8]byte
type TableUID [8]byte
type InvokingID [8]byte
type MethodID [8]byte

// Row derives the RowUID for a row identified by the last four bytes,
// following the TCG convention that a row UID shares its table's first
// four bytes.
func (t TableUID) Row(id [4]byte) RowUID {
	return RowUID{t[0], t[1], t[2], t[3], id[0], id[1], id[2], id[3]}
}

var (
	// Session manager and null invoking IDs.
	SessionManager InvokingID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x01}
	InvokeIDNull   InvokingID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	InvokeIDThisSP InvokingID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}

	// Security providers.
	AdminSP   RowUID = [8]byte{0x00, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x01}
	LockingSP RowUID = [8]byte{0x00, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x02}

	// Table objects.
	Base_TableTable         TableUID = [8]byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	Base_MethodIDTable      TableUID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00}
	Base_AccessControlTable TableUID = [8]byte{0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x00}

	Admin_TPerInfoTable TableUID = [8]byte{0x00, 0x00, 0x02, 0x01, 0x00, 0x00, 0x00, 0x00}
	Admin_C_PINTable    TableUID = [8]byte{0x00, 0x00, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x00}
	Locking_LockingInfo TableUID = [8]byte{0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x00}
	Locking_LockingTable TableUID = [8]byte{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x00}
	Locking_MBRControl  TableUID = [8]byte{0x00, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00, 0x00}
	Locking_MBRTable    TableUID = [8]byte{0x00, 0x00, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00}

	// Well-known rows.
	Admin_C_PIN_MSIDRow   RowUID = Admin_C_PINTable.Row([4]byte{0x00, 0x00, 0x84, 0x02})
	Admin_C_PIN_SIDRow    RowUID = Admin_C_PINTable.Row([4]byte{0x00, 0x00, 0x00, 0x01})
	Admin_C_PIN_Admin1Row RowUID = Admin_C_PINTable.Row([4]byte{0x00, 0x01, 0x00, 0x01})
	Admin_TPerInfoObj     RowUID = Admin_TPerInfoTable.Row([4]byte{0x00, 0x03, 0x00, 0x01})
	LockingInfoObj        RowUID = [8]byte{0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x01}
	EnterpriseLockingInfoObj RowUID = [8]byte{0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x01}
	LockingGlobalRange    RowUID = [8]byte{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x01}
	MBRControlObj         RowUID = [8]byte{0x00, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00, 0x01}

	// Authorities.
	AuthoritySID     RowUID = [8]byte{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x06}
	AuthorityAdmin1  RowUID = [8]byte{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x01}
	AuthorityAnybody RowUID = [8]byte{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}

	// Method UIDs (see TCG Storage Core Architecture, table of Method UIDs).
	MethodIDProperties      MethodID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x01}
	MethodIDStartSession    MethodID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x02}
	MethodIDSyncSession     MethodID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x03}
	MethodIDEndSession      MethodID = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x04}

	MethodIDGet                    MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x16}
	MethodIDSet                    MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x17}
	MethodIDNext                   MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x08}
	MethodIDAuthenticate           MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x1C}
	MethodIDRandom                 MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x06, 0x01}
	MethodIDActivate               MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x02, 0x03}
	MethodIDRevert                 MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x02, 0x02}
	MethodIDRevertSP               MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x02, 0x11}

	MethodIDEnterpriseGet          MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x06}
	MethodIDEnterpriseSet          MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x07}
	MethodIDEnterpriseAuthenticate MethodID = [8]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x0C}
)

// Base_TableRowForTable returns the TableTable row that describes a given
// table's own metadata (its info-row, holding e.g. its MBR size columns).
func Base_TableRowForTable(tid TableUID) RowUID {
	return Base_TableTable.Row([4]byte{tid[0], tid[1], tid[2], tid[3]})
}
