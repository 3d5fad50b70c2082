package output

import (
	"fmt"

	"github.com/lintmend/lintmend/internal/fault"
)

// Error outputs an error in the appropriate format
func (f *Formatter) Error(err error) error {
	if f.IsJSON() {
		return f.JSON(ErrorResponseFor(err))
	}
	return err
}

// ErrorMsg outputs an error message in the appropriate format
func (f *Formatter) ErrorMsg(msg string) error {
	if f.IsJSON() {
		return f.JSON(NewError(msg))
	}
	return fmt.Errorf("%s", msg)
}

// ErrorWithCode outputs an error with a code in the appropriate format
func (f *Formatter) ErrorWithCode(code, msg string) error {
	if f.IsJSON() {
		return f.JSON(NewErrorWithCode(code, msg))
	}
	return fmt.Errorf("[%s] %s", code, msg)
}

// ErrorWithHint outputs an error with a recovery hint
func (f *Formatter) ErrorWithHint(msg, hint string) error {
	if f.IsJSON() {
		return f.JSON(ErrorResponse{Error: msg, Hint: hint})
	}
	return fmt.Errorf("%s (%s)", msg, hint)
}

// ErrorResponseFor attaches the fault kind as the machine-readable code
func ErrorResponseFor(err error) ErrorResponse {
	resp := NewError(err.Error())
	if kind := fault.KindOf(err); kind != fault.KindNone {
		resp.Code = string(kind)
	}
	return resp
}
