package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message bodies use the protobuf wire format, encoded and decoded by hand
// with protowire. Field numbers are part of the wire contract and never
// reused. Zero values are omitted, proto3 style; absent fields decode to
// their zero value.

// Per-method error codes carried in ErrorInfo.ErrorType.
const (
	CreateErrUnspecified        uint32 = 0
	CreateErrRateLimited        uint32 = 1
	CreateErrIllegalPhoneNumber uint32 = 2
)

const (
	SendErrUnspecified         uint32 = 0
	SendErrSessionNotFound     uint32 = 1
	SendErrRateLimited         uint32 = 2
	SendErrTransportNotAllowed uint32 = 3
)

const (
	CheckErrUnspecified     uint32 = 0
	CheckErrSessionNotFound uint32 = 1
	CheckErrRateLimited     uint32 = 2
	CheckErrNoCodeSent      uint32 = 3
)

const (
	GetErrUnspecified     uint32 = 0
	GetErrSessionNotFound uint32 = 1
)

const (
	ValidateErrUnspecified         uint32 = 0
	ValidateErrUserNotFound        uint32 = 1
	ValidateErrInvalidCredentials  uint32 = 2
	ValidateErrPhoneNumberNotFound uint32 = 3
	ValidateErrServerError         uint32 = 4
)

// Transport values for SendVerificationCodeRequest.
const (
	TransportSMS   int32 = 0
	TransportVoice int32 = 1
)

// CreateSessionRequest opens a registration session. Credentials travel as
// request fields; E164 optionally names the number the caller expects.
type CreateSessionRequest struct {
	Username string // field 1
	Password string // field 2
	E164     uint64 // field 3, optional
}

// GetSessionMetadataRequest fetches the current projection of a session.
type GetSessionMetadataRequest struct {
	SessionID []byte // field 1
}

// SendVerificationCodeRequest asks for a code over SMS or voice.
type SendVerificationCodeRequest struct {
	SessionID []byte // field 1
	Transport int32  // field 2
}

// CheckVerificationCodeRequest submits a candidate code.
type CheckVerificationCodeRequest struct {
	SessionID []byte // field 1
	Code      string // field 2
}

// ValidateCredentialsRequest is the secondary directory-validation surface.
type ValidateCredentialsRequest struct {
	Username string // field 1
	Password string // field 2
}

// SessionMetadata is the caller-visible projection of a session.
type SessionMetadata struct {
	SessionID            []byte // field 1, 16 raw bytes
	Verified             bool   // field 2
	E164                 uint64 // field 3
	MayRequestSMS        bool   // field 4
	NextSMSSeconds       uint64 // field 5
	MayRequestVoiceCall  bool   // field 6
	NextVoiceCallSeconds uint64 // field 7
	MayCheckCode         bool   // field 8
	NextCodeCheckSeconds uint64 // field 9
	ExpirationSeconds    uint64 // field 10
}

// ErrorInfo is the typed error side of every response union.
type ErrorInfo struct {
	ErrorType         uint32 // field 1, per-method enum
	MayRetry          bool   // field 2
	RetryAfterSeconds uint64 // field 3
	Message           string // field 4
}

// SessionResponse is the response union for methods 1-4: exactly one of
// Metadata and Error is set.
type SessionResponse struct {
	Metadata *SessionMetadata // field 1
	Error    *ErrorInfo       // field 2
}

// ValidateCredentialsResponse carries the resolved number or a typed error.
// The number travels as its canonical E.164 string, plus sign included.
type ValidateCredentialsResponse struct {
	PhoneNumber string     // field 1
	Error       *ErrorInfo // field 2
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// fieldError reports a malformed field value.
func fieldError(num protowire.Number, n int) error {
	return fmt.Errorf("protocol: field %d: %w", num, protowire.ParseError(n))
}

// walkFields iterates the top-level fields of data, dispatching each to fn.
// fn returns the number of bytes it consumed, or a negative protowire count
// on malformed input; zero means the field is unknown and gets skipped.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) int) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("protocol: tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		consumed := fn(num, typ, data)
		if consumed < 0 {
			return fieldError(num, consumed)
		}
		if consumed == 0 {
			consumed = protowire.ConsumeFieldValue(num, typ, data)
			if consumed < 0 {
				return fieldError(num, consumed)
			}
		}
		data = data[consumed:]
	}
	return nil
}

// Marshal encodes the request body.
func (m *CreateSessionRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Username)
	b = appendString(b, 2, m.Password)
	b = appendUint64(b, 3, m.E164)
	return b
}

// Unmarshal decodes the request body.
func (m *CreateSessionRequest) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.Username = v
			}
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.Password = v
			}
			return n
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if n >= 0 {
				m.E164 = v
			}
			return n
		}
		return 0
	})
}

func (m *GetSessionMetadataRequest) Marshal() []byte {
	return appendBytes(nil, 1, m.SessionID)
}

func (m *GetSessionMetadataRequest) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				m.SessionID = append([]byte(nil), v...)
			}
			return n
		}
		return 0
	})
}

func (m *SendVerificationCodeRequest) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.SessionID)
	b = appendUint64(b, 2, uint64(m.Transport))
	return b
}

func (m *SendVerificationCodeRequest) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				m.SessionID = append([]byte(nil), v...)
			}
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if n >= 0 {
				m.Transport = int32(v)
			}
			return n
		}
		return 0
	})
}

func (m *CheckVerificationCodeRequest) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.SessionID)
	b = appendString(b, 2, m.Code)
	return b
}

func (m *CheckVerificationCodeRequest) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				m.SessionID = append([]byte(nil), v...)
			}
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.Code = v
			}
			return n
		}
		return 0
	})
}

func (m *ValidateCredentialsRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Username)
	b = appendString(b, 2, m.Password)
	return b
}

func (m *ValidateCredentialsRequest) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.Username = v
			}
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.Password = v
			}
			return n
		}
		return 0
	})
}

func (m *SessionMetadata) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.SessionID)
	b = appendBool(b, 2, m.Verified)
	b = appendUint64(b, 3, m.E164)
	b = appendBool(b, 4, m.MayRequestSMS)
	b = appendUint64(b, 5, m.NextSMSSeconds)
	b = appendBool(b, 6, m.MayRequestVoiceCall)
	b = appendUint64(b, 7, m.NextVoiceCallSeconds)
	b = appendBool(b, 8, m.MayCheckCode)
	b = appendUint64(b, 9, m.NextCodeCheckSeconds)
	b = appendUint64(b, 10, m.ExpirationSeconds)
	return b
}

func (m *SessionMetadata) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		if typ == protowire.BytesType && num == 1 {
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				m.SessionID = append([]byte(nil), v...)
			}
			return n
		}
		if typ != protowire.VarintType {
			return 0
		}
		v, n := protowire.ConsumeVarint(field)
		if n < 0 {
			return n
		}
		switch num {
		case 2:
			m.Verified = v != 0
		case 3:
			m.E164 = v
		case 4:
			m.MayRequestSMS = v != 0
		case 5:
			m.NextSMSSeconds = v
		case 6:
			m.MayRequestVoiceCall = v != 0
		case 7:
			m.NextVoiceCallSeconds = v
		case 8:
			m.MayCheckCode = v != 0
		case 9:
			m.NextCodeCheckSeconds = v
		case 10:
			m.ExpirationSeconds = v
		default:
			return 0
		}
		return n
	})
}

func (m *ErrorInfo) Marshal() []byte {
	var b []byte
	b = appendUint64(b, 1, uint64(m.ErrorType))
	b = appendBool(b, 2, m.MayRetry)
	b = appendUint64(b, 3, m.RetryAfterSeconds)
	b = appendString(b, 4, m.Message)
	return b
}

func (m *ErrorInfo) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if n >= 0 {
				m.ErrorType = uint32(v)
			}
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if n >= 0 {
				m.MayRetry = v != 0
			}
			return n
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if n >= 0 {
				m.RetryAfterSeconds = v
			}
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.Message = v
			}
			return n
		}
		return 0
	})
}

func (m *SessionResponse) Marshal() []byte {
	var b []byte
	if m.Metadata != nil {
		b = appendBytes(b, 1, m.Metadata.Marshal())
	}
	if m.Error != nil {
		b = appendBytes(b, 2, m.Error.Marshal())
	}
	return b
}

func (m *SessionResponse) Unmarshal(data []byte) error {
	var inner error
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				md := &SessionMetadata{}
				if e := md.Unmarshal(v); e != nil {
					inner = e
					return n
				}
				m.Metadata = md
			}
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				ei := &ErrorInfo{}
				if e := ei.Unmarshal(v); e != nil {
					inner = e
					return n
				}
				m.Error = ei
			}
			return n
		}
		return 0
	})
	if err != nil {
		return err
	}
	return inner
}

func (m *ValidateCredentialsResponse) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.PhoneNumber)
	if m.Error != nil {
		b = appendBytes(b, 2, m.Error.Marshal())
	}
	return b
}

func (m *ValidateCredentialsResponse) Unmarshal(data []byte) error {
	var inner error
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n >= 0 {
				m.PhoneNumber = v
			}
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				ei := &ErrorInfo{}
				if e := ei.Unmarshal(v); e != nil {
					inner = e
					return n
				}
				m.Error = ei
			}
			return n
		}
		return 0
	})
	if err != nil {
		return err
	}
	return inner
}
