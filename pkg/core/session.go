// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/opalhost/go-opal/pkg/core/stream"
	"github.com/opalhost/go-opal/pkg/core/uid"
	"github.com/opalhost/go-opal/pkg/drive"
)

// MethodObserver receives one notification per completed method
// invocation. pkg/metrics.SessionObserver implements this to feed
// Prometheus counters/histograms without core depending on Prometheus.
type MethodObserver interface {
	Observe(status string, d time.Duration)
}

// MethodCall accumulates the argument stream for a single method
// invocation, in the on-wire token order: Call, InvokingUID, MethodUID,
// StartList, <args>, EndList, EndOfData, <expected status template>.
type MethodCall struct {
	buf   bytes.Buffer
	proto ProtocolLevel
}

// NewMethodCall begins building an invocation of method on the object
// identified by invoking.
func NewMethodCall(invoking uid.InvokingID, method uid.MethodID, proto ProtocolLevel) *MethodCall {
	m := &MethodCall{proto: proto}
	m.buf.WriteByte(byte(stream.Call))
	m.buf.Write(stream.Bytes(invoking[:]))
	m.buf.Write(stream.Bytes(method[:]))
	m.buf.WriteByte(byte(stream.StartList))
	return m
}

func (m *MethodCall) UInt(v uint) *MethodCall {
	m.buf.Write(stream.UInt(v))
	return m
}

func (m *MethodCall) Bytes(b []byte) *MethodCall {
	m.buf.Write(stream.Bytes(b))
	return m
}

func (m *MethodCall) RowUID(u uid.RowUID) *MethodCall { return m.Bytes(u[:]) }

func (m *MethodCall) StartList() *MethodCall {
	m.buf.WriteByte(byte(stream.StartList))
	return m
}

func (m *MethodCall) EndList() *MethodCall {
	m.buf.WriteByte(byte(stream.EndList))
	return m
}

func (m *MethodCall) StartName() *MethodCall {
	m.buf.WriteByte(byte(stream.StartName))
	return m
}

func (m *MethodCall) EndName() *MethodCall {
	m.buf.WriteByte(byte(stream.EndName))
	return m
}

// StartOptionalParameter opens a Named optional-parameter pair, writing the
// name atom in whichever form this call's protocol level expects: a numeric
// tiny atom (id) for the Core SSC, or an ASCII string atom (name) for the
// Enterprise SSC. Callers write the value and close with EndOptionalParameter.
func (m *MethodCall) StartOptionalParameter(id uint, name string) *MethodCall {
	m.buf.WriteByte(byte(stream.StartName))
	if m.proto == ProtocolLevelEnterprise {
		m.buf.Write(stream.Bytes([]byte(name)))
	} else {
		m.buf.Write(stream.UInt(id))
	}
	return m
}

// EndOptionalParameter closes a Named pair opened with StartOptionalParameter.
func (m *MethodCall) EndOptionalParameter() *MethodCall {
	m.buf.WriteByte(byte(stream.EndName))
	return m
}

// NamedUInt appends a "Name : UInteger" optional-parameter pair.
func (m *MethodCall) NamedUInt(name string, v uint) *MethodCall {
	return m.StartName().Bytes([]byte(name)).UInt(v).EndName()
}

// NamedBytes appends a "Name : Bytes" optional-parameter pair.
func (m *MethodCall) NamedBytes(name string, b []byte) *MethodCall {
	return m.StartName().Bytes([]byte(name)).Bytes(b).EndName()
}

// NamedBool appends a "Name : Boolean" optional-parameter pair, encoded as
// a UInteger 0/1 per the Core spec's boolean-as-uinteger convention.
func (m *MethodCall) NamedBool(name string, v bool) *MethodCall {
	n := uint(0)
	if v {
		n = 1
	}
	return m.NamedUInt(name, n)
}

// MarshalBinary closes the argument list and appends the trailing
// EndOfData/status-list template a well-formed request always carries.
func (m *MethodCall) MarshalBinary() ([]byte, error) {
	m.buf.WriteByte(byte(stream.EndList))
	m.buf.WriteByte(byte(stream.EndOfData))
	m.buf.WriteByte(byte(stream.StartList))
	m.buf.Write(stream.UInt(0))
	m.buf.Write(stream.UInt(0))
	m.buf.Write(stream.UInt(0))
	m.buf.WriteByte(byte(stream.EndList))
	return m.buf.Bytes(), nil
}

// parseMethodResponse decodes a response payload into its result list and
// verifies the trailing status list reports success.
func parseMethodResponse(payload []byte) (stream.List, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyMethodResponse
	}
	tokens, err := stream.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMethodResponse, err)
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyMethodResponse
	}
	status, ok := tokens[len(tokens)-1].(stream.List)
	if !ok || len(status) != 3 {
		return nil, ErrMalformedMethodResponse
	}
	code, ok := status[0].(uint)
	if !ok {
		return nil, ErrMalformedMethodResponse
	}
	if code != MethodStatusSuccess {
		return nil, &MethodFailedError{Code: code}
	}
	return tokens[:len(tokens)-1], nil
}

// HostProperties are the transport parameters the host offers the TPer
// during Properties negotiation (Table 168 of the Core spec).
type HostProperties struct {
	MaxMethods               uint
	MaxSubpackets            uint
	MaxPacketSize            uint
	MaxPackets               uint
	MaxComPacketSize         uint
	MaxResponseComPacketSize uint
	MaxSessions              uint
	MaxReadSessions          uint
	MaxIndTokenSize          uint
	MaxAggTokenSize          uint
	ContinuedTokens          bool
	SequenceNumbers          bool
	AckNak                   bool
	Asynchronous             bool
}

func defaultHostProperties() HostProperties {
	return HostProperties{
		MaxMethods:               1,
		MaxSubpackets:            1,
		MaxPacketSize:            maxComPacketSize,
		MaxPackets:               1,
		MaxComPacketSize:         maxComPacketSize,
		MaxResponseComPacketSize: maxComPacketSize,
		MaxSessions:              1,
		MaxReadSessions:          1,
		MaxIndTokenSize:          968,
		MaxAggTokenSize:          968,
	}
}

// TPerProperties are the transport parameters the TPer reports back
// (Table 169). The host must not exceed these once negotiated.
type TPerProperties struct {
	MaxMethods               uint
	MaxSubpackets            uint
	MaxPacketSize            uint
	MaxPackets               uint
	MaxComPacketSize         uint
	MaxResponseComPacketSize uint
	MaxSessions              uint
	MaxReadSessions          uint
	MaxIndTokenSize          uint
	MaxAggTokenSize          uint
	MaxRetries               uint
	ContinuedTokens          bool
	SequenceNumbers          bool
	AckNak                   bool
	Asynchronous             bool
}

var propertyFields = []string{
	"MaxMethods", "MaxSubpackets", "MaxPacketSize", "MaxPackets",
	"MaxComPacketSize", "MaxResponseComPacketSize", "MaxSessions",
	"MaxReadSessions", "MaxIndTokenSize", "MaxAggTokenSize",
}

// ControlSession is the implicit session 0 used to negotiate Properties
// and to open and close per-SP sessions. One exists per open ComID.
type ControlSession struct {
	d     drive.DriveIntf
	comID ComID
	proto ProtocolLevel
	log   *slog.Logger

	HostProperties HostProperties
	TPerProperties TPerProperties
	Capability     Capability

	observer MethodObserver
}

// Option customizes a ControlSession at construction time.
type Option func(*ControlSession)

// WithLogger routes the session's diagnostic trace to l instead of the
// default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(cs *ControlSession) { cs.log = l }
}

// WithMethodObserver registers o to be notified of every method
// invocation's status and latency, across the control session and every
// session opened from it.
func WithMethodObserver(o MethodObserver) Option {
	return func(cs *ControlSession) { cs.observer = o }
}

// NewControlSession performs Level-0 ComID selection, a stack reset, and
// Properties negotiation, returning a session ready to open per-SP
// sessions against d.
func NewControlSession(d drive.DriveIntf, d0 *Level0Discovery, opts ...Option) (*ControlSession, error) {
	comID, proto, err := FindComID(d, d0)
	if err != nil {
		return nil, err
	}
	if err := StackReset(d, comID); err != nil {
		return nil, err
	}
	cs := &ControlSession{
		d:              d,
		comID:          comID,
		proto:          proto,
		log:            slog.Default(),
		HostProperties: defaultHostProperties(),
		Capability:     DeriveCapability(d0),
	}
	for _, o := range opts {
		o(cs)
	}
	if err := cs.exchangeProperties(); err != nil {
		return nil, err
	}
	cs.Capability.MaxComPacketSize = uint32(cs.TPerProperties.MaxComPacketSize)
	return cs, nil
}

func (cs *ControlSession) exchangeProperties() error {
	mc := NewMethodCall(uid.SessionManager, uid.MethodIDProperties, cs.proto)
	mc.StartList()
	for i, name := range propertyFields {
		v := []uint{
			cs.HostProperties.MaxMethods, cs.HostProperties.MaxSubpackets,
			cs.HostProperties.MaxPacketSize, cs.HostProperties.MaxPackets,
			cs.HostProperties.MaxComPacketSize, cs.HostProperties.MaxResponseComPacketSize,
			cs.HostProperties.MaxSessions, cs.HostProperties.MaxReadSessions,
			cs.HostProperties.MaxIndTokenSize, cs.HostProperties.MaxAggTokenSize,
		}[i]
		mc.NamedUInt(name, v)
	}
	mc.EndList()

	result, err := cs.invoke(mc)
	if err != nil {
		return fmt.Errorf("properties exchange failed: %w", err)
	}
	cs.log.Debug("negotiated TPer properties", "comID", cs.comID)

	// Start from a conservative mirror of what we offered, since a TPer is
	// free to reply with a subset and we must not exceed either side; then
	// override every field the TPer actually reported.
	cs.TPerProperties = TPerProperties{
		MaxMethods:               cs.HostProperties.MaxMethods,
		MaxSubpackets:            cs.HostProperties.MaxSubpackets,
		MaxPacketSize:            cs.HostProperties.MaxPacketSize,
		MaxPackets:               cs.HostProperties.MaxPackets,
		MaxComPacketSize:         cs.HostProperties.MaxComPacketSize,
		MaxResponseComPacketSize: cs.HostProperties.MaxResponseComPacketSize,
		MaxSessions:              cs.HostProperties.MaxSessions,
		MaxReadSessions:          cs.HostProperties.MaxReadSessions,
		MaxIndTokenSize:          cs.HostProperties.MaxIndTokenSize,
		MaxAggTokenSize:          cs.HostProperties.MaxAggTokenSize,
	}
	reported := parseProperties(result)
	if v, ok := reported["MaxMethods"]; ok {
		cs.TPerProperties.MaxMethods = v
	}
	if v, ok := reported["MaxSubpackets"]; ok {
		cs.TPerProperties.MaxSubpackets = v
	}
	if v, ok := reported["MaxPacketSize"]; ok {
		cs.TPerProperties.MaxPacketSize = v
	}
	if v, ok := reported["MaxPackets"]; ok {
		cs.TPerProperties.MaxPackets = v
	}
	if v, ok := reported["MaxComPacketSize"]; ok {
		cs.TPerProperties.MaxComPacketSize = v
	}
	if v, ok := reported["MaxResponseComPacketSize"]; ok {
		cs.TPerProperties.MaxResponseComPacketSize = v
	}
	if v, ok := reported["MaxSessions"]; ok {
		cs.TPerProperties.MaxSessions = v
	}
	if v, ok := reported["MaxReadSessions"]; ok {
		cs.TPerProperties.MaxReadSessions = v
	}
	if v, ok := reported["MaxIndTokenSize"]; ok {
		cs.TPerProperties.MaxIndTokenSize = v
	}
	if v, ok := reported["MaxAggTokenSize"]; ok {
		cs.TPerProperties.MaxAggTokenSize = v
	}
	return nil
}

// parseProperties walks a Properties() reply, which is a list whose
// elements are Name/Value pairs (each decoded by stream.Decode as a nested
// two-element List), into a name-keyed map of uint values. Pairs whose
// value isn't a uint (e.g. the boolean-flag columns) are skipped; this
// library only consumes the ComPacket/token-size ceilings.
func parseProperties(result stream.List) map[string]uint {
	out := map[string]uint{}
	var walk func(stream.List)
	walk = func(l stream.List) {
		for _, item := range l {
			pair, ok := item.(stream.List)
			if !ok {
				continue
			}
			if len(pair) == 2 {
				if name, ok := pair[0].([]byte); ok {
					if v, ok := pair[1].(uint); ok {
						out[string(name)] = v
						continue
					}
				}
			}
			walk(pair)
		}
	}
	walk(result)
	return out
}

// invoke sends mc over the control session (TSN=HSN=0) and returns its
// parsed result list.
func (cs *ControlSession) invoke(mc *MethodCall) (stream.List, error) {
	start := time.Now()
	result, err := cs.invokeUninstrumented(mc)
	if cs.observer != nil {
		cs.observer.Observe(observedStatus(err), time.Since(start))
	}
	return result, err
}

func (cs *ControlSession) invokeUninstrumented(mc *MethodCall) (stream.List, error) {
	payload, err := mc.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := send(cs.d, cs.comID, 0, 0, payload, cs.TPerProperties.MaxComPacketSize); err != nil {
		return nil, err
	}
	resp, _, _, err := receive(cs.d, cs.comID, cs.log)
	if err != nil {
		return nil, err
	}
	return parseMethodResponse(resp)
}

func observedStatus(err error) string {
	if err == nil {
		return "success"
	}
	if mf, ok := err.(*MethodFailedError); ok {
		return fmt.Sprintf("0x%02x", mf.Code)
	}
	return "error"
}

// Session is an authenticated conversation with a single Security
// Provider, opened with LoginAnon/Login and closed with
// EndSession.
type Session struct {
	cs    *ControlSession
	tsn   uint32
	hsn   uint32
	sp    uid.RowUID
	proto ProtocolLevel
}

var nextHSN uint32 = 1

// LoginAnon opens an anonymous (Anybody authority) session against sp,
// sufficient for reading public tables such as Locking Range 0's global
// lock state.
func LoginAnon(cs *ControlSession, sp uid.RowUID) (*Session, error) {
	return newSession(cs, sp, nil, nil)
}

// Login opens a session against sp authenticated as authority, presenting
// challenge as the HostChallenge parameter (typically a PIN's raw bytes).
func Login(cs *ControlSession, sp uid.RowUID, authority uid.RowUID, challenge []byte) (*Session, error) {
	a := authority
	return newSession(cs, sp, &a, challenge)
}

func newSession(cs *ControlSession, sp uid.RowUID, authority *uid.RowUID, challenge []byte) (*Session, error) {
	hsn := nextHSN
	nextHSN++

	mc := NewMethodCall(uid.SessionManager, uid.MethodIDStartSession, cs.proto)
	mc.UInt(uint(hsn))
	mc.RowUID(sp)
	mc.NamedBool("Write", true)
	if authority != nil {
		mc.NamedBytes("HostChallenge", challenge)
		mc.NamedBytes("HostSigningAuthority", (*authority)[:])
	}

	result, err := cs.invoke(mc)
	if err != nil {
		return nil, fmt.Errorf("StartSession: %w", err)
	}
	if len(result) < 2 {
		return nil, ErrMalformedMethodResponse
	}
	tsn, ok := result[1].(uint)
	if !ok {
		return nil, ErrMalformedMethodResponse
	}

	return &Session{cs: cs, tsn: uint32(tsn), hsn: hsn, sp: sp, proto: cs.proto}, nil
}

// Invoke sends mc within this session and returns the invocation's result
// list, or a *MethodFailedError if the TPer reported a non-zero status.
func (s *Session) Invoke(mc *MethodCall) (stream.List, error) {
	start := time.Now()
	result, err := s.invokeUninstrumented(mc)
	if s.cs.observer != nil {
		s.cs.observer.Observe(observedStatus(err), time.Since(start))
	}
	return result, err
}

func (s *Session) invokeUninstrumented(mc *MethodCall) (stream.List, error) {
	payload, err := mc.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := send(s.cs.d, s.cs.comID, s.tsn, s.hsn, payload, s.cs.TPerProperties.MaxComPacketSize); err != nil {
		return nil, err
	}
	resp, _, _, err := receive(s.cs.d, s.cs.comID, s.cs.log)
	if err != nil {
		return nil, err
	}
	return parseMethodResponse(resp)
}

// Proto reports the protocol level (Core or Enterprise) this session's
// ComID negotiated, needed by callers that build their own MethodCall.
func (s *Session) Proto() ProtocolLevel { return s.proto }

// MaxComPacketSize reports the negotiated ComPacket ceiling, the transport
// limit callers that chunk large transfers (e.g. the shadow MBR image)
// must stay under.
func (s *Session) MaxComPacketSize() uint { return s.cs.TPerProperties.MaxComPacketSize }

// ExecuteMethod invokes method on object with the given positional
// UInteger/Bytes-free argument builder callback, a thin convenience over
// Invoke for callers that don't need the full MethodCall API.
func (s *Session) ExecuteMethod(object uid.InvokingID, method uid.MethodID, build func(*MethodCall)) (stream.List, error) {
	mc := NewMethodCall(object, method, s.proto)
	if build != nil {
		build(mc)
	}
	return s.Invoke(mc)
}

// EndSession closes the session's TSN/HSN pair. Per the swallow-on-implicit
// -teardown policy documented in DESIGN.md, callers that need to know
// whether the TPer actually accepted the EndSession should check the
// returned error themselves; internal teardown paths (Revert, deferred
// cleanup) intentionally ignore it.
func (s *Session) EndSession() error {
	var buf bytes.Buffer
	buf.WriteByte(byte(stream.EndOfSession))
	if err := send(s.cs.d, s.cs.comID, s.tsn, s.hsn, buf.Bytes(), s.cs.TPerProperties.MaxComPacketSize); err != nil {
		return err
	}
	_, _, _, err := receive(s.cs.d, s.cs.comID, s.cs.log)
	return err
}

// MaxAdmins reports how many Admin authorities the Locking SP supports,
// taken from the Opal V2 (or Ruby V1) feature descriptor's
// NumLockingSPAdminSupported field recorded at discovery time. Drives that
// only advertise Opal V1 or Enterprise SSC don't carry this count; those
// always report the one guaranteed Admin1 authority.
func (s *Session) MaxAdmins() (int, error) {
	if n := s.cs.Capability.AdminCount; n > 0 {
		return int(n), nil
	}
	return 1, nil
}

// MaxUsers reports how many User authorities the Locking SP supports, from
// the same capability record as MaxAdmins.
func (s *Session) MaxUsers() (int, error) {
	if n := s.cs.Capability.UserCount; n > 0 {
		return int(n), nil
	}
	return 1, nil
}

// Revert invokes RevertSP (or Revert on the Admin SP) against the session's
// SP, returning it to its factory state. Per this library's swallow-on
// -implicit-teardown policy, a failure to also cleanly end the now-invalid
// session is not surfaced: the TPer has already torn down the SP.
func (s *Session) Revert() error {
	method := uid.MethodIDRevertSP
	target := uid.InvokingID(s.sp)
	if s.sp == uid.AdminSP {
		method = uid.MethodIDRevert
	}
	mc := NewMethodCall(target, method, s.proto)
	if _, err := s.Invoke(mc); err != nil {
		return fmt.Errorf("Revert: %w", err)
	}
	_ = s.EndSession()
	return nil
}
