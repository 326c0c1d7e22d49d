package services

import (
	_ "embed"
	"errors"
	"strconv"

	"github.com/desertthunder/mpsync/internal/shared"
)

// DefaultErrorMessage is used when neither the code table nor the server supplies a message.
const DefaultErrorMessage = "接口返回错误"

//go:embed codes.json
var codesJSON []byte

var errorCodes = mustLoadCodes(codesJSON)

func mustLoadCodes(data []byte) map[string]string {
	codes := make(map[string]string)
	if err := jsonCodec.Unmarshal(data, &codes); err != nil {
		panic("services: invalid codes.json: " + err.Error())
	}
	return codes
}

// ErrorMessage resolves a platform result code to a human message. Unknown codes fall back
// to the server-supplied message and then to [DefaultErrorMessage].
func ErrorMessage(code int, serverMsg string) string {
	if msg, ok := errorCodes[strconv.Itoa(code)]; ok {
		return msg
	}
	if serverMsg != "" {
		return serverMsg
	}
	return DefaultErrorMessage
}

// BusinessError is a non-zero platform result code.
type BusinessError struct {
	Code    int
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

// Is lets callers match any business error with errors.Is(err, shared.ErrBusiness).
func (e *BusinessError) Is(target error) bool { return target == shared.ErrBusiness }

// NewBusinessError builds a BusinessError with its message resolved through the code table.
func NewBusinessError(code int, serverMsg string) *BusinessError {
	return &BusinessError{Code: code, Message: ErrorMessage(code, serverMsg)}
}

// CodeOf extracts the platform code from err.
func CodeOf(err error) (int, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code, true
	}
	return 0, false
}
