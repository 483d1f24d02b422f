// Package errmap maps domain errors to the wire protocol's per-method error
// codes. Every domain error a handler can surface has an explicit mapping;
// anything unmapped becomes the method's unspecified code with a generic
// message so internals never leak to clients.
package errmap

import (
	"errors"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
	"github.com/aelexs/registration-gateway/pkg/protocol"
)

// mapping rows are matched with errors.Is in order; first match wins.
type mapping struct {
	err      error
	code     uint32
	mayRetry bool
}

var createMappings = []mapping{
	{domain.ErrRateLimited, protocol.CreateErrRateLimited, true},
	{domain.ErrInvalidPhoneNumber, protocol.CreateErrIllegalPhoneNumber, false},
	// Auth failures are deliberately unspecified on this surface.
	{domain.ErrBadCredentials, protocol.CreateErrUnspecified, false},
	{domain.ErrInvalidInput, protocol.CreateErrUnspecified, false},
	{domain.ErrUnavailable, protocol.CreateErrUnspecified, true},
}

var getMappings = []mapping{
	{domain.ErrSessionNotFound, protocol.GetErrSessionNotFound, false},
}

var sendMappings = []mapping{
	{domain.ErrSessionNotFound, protocol.SendErrSessionNotFound, false},
	{domain.ErrRateLimited, protocol.SendErrRateLimited, true},
	{domain.ErrTransportNotAllowed, protocol.SendErrTransportNotAllowed, false},
	{domain.ErrTransportRejected, protocol.SendErrTransportNotAllowed, false},
	{domain.ErrUnavailable, protocol.SendErrUnspecified, true},
}

var checkMappings = []mapping{
	{domain.ErrSessionNotFound, protocol.CheckErrSessionNotFound, false},
	{domain.ErrRateLimited, protocol.CheckErrRateLimited, true},
	{domain.ErrNoCodeSent, protocol.CheckErrNoCodeSent, false},
	{domain.ErrUnavailable, protocol.CheckErrUnspecified, true},
}

var validateMappings = []mapping{
	{domain.ErrUserNotFound, protocol.ValidateErrUserNotFound, false},
	{domain.ErrBadCredentials, protocol.ValidateErrInvalidCredentials, false},
	{domain.ErrNoPhoneAttribute, protocol.ValidateErrPhoneNumberNotFound, false},
	{domain.ErrInvalidInput, protocol.ValidateErrInvalidCredentials, false},
	{domain.ErrUnavailable, protocol.ValidateErrServerError, true},
	{domain.ErrDirectoryRateLimit, protocol.ValidateErrServerError, true},
}

var methodMappings = map[protocol.Method][]mapping{
	protocol.MethodCreateSession:         createMappings,
	protocol.MethodGetSessionMetadata:    getMappings,
	protocol.MethodSendVerificationCode:  sendMappings,
	protocol.MethodCheckVerificationCode: checkMappings,
	protocol.MethodValidateCredentials:   validateMappings,
}

// ToErrorInfo converts a domain error into the wire ErrorInfo for the given
// method. Only the mapped sentinel's text crosses the wire; wrapped internal
// detail stays in logs. Retry-after hints attached by the app layer are
// carried through.
func ToErrorInfo(method protocol.Method, err error) *protocol.ErrorInfo {
	info := &protocol.ErrorInfo{
		ErrorType: 0,
		MayRetry:  domain.IsRetryable(err),
		Message:   "internal error",
	}

	for _, m := range methodMappings[method] {
		if errors.Is(err, m.err) {
			info.ErrorType = m.code
			info.MayRetry = m.mayRetry
			info.Message = m.err.Error()
			break
		}
	}

	var hint *app.RetryHint
	if errors.As(err, &hint) {
		info.RetryAfterSeconds = hint.RetryAfterSeconds
	}
	return info
}
