package jobs

import (
	"errors"
	"fmt"
)

// エラーコード
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "JOB_NOT_FOUND"
	CodeNotReady     = "NOT_READY"
	CodeFetchFailed  = "FETCH_FAILED"
	CodeFileMissing  = "FILE_MISSING"
	CodeQueueFull    = "QUEUE_FULL"
	CodeInternal     = "INTERNAL_ERROR"
)

// Error はコード付きのジョブ処理エラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is はコードが一致する *Error を同一とみなします。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// errors.Is で判定するための代表値
var (
	ErrInvalidInput = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "job not found"}
	ErrNotReady     = &Error{Code: CodeNotReady, Message: "job result not ready"}
	ErrFetchFailed  = &Error{Code: CodeFetchFailed, Message: "fetch failed"}
	ErrFileMissing  = &Error{Code: CodeFileMissing, Message: "result file missing"}
	ErrQueueFull    = &Error{Code: CodeQueueFull, Message: "job queue is full"}
)

// ErrInvalidTransition は許可されていない状態遷移です。
var ErrInvalidTransition = errors.New("invalid status transition")

// errNoChange は更新不要を表し、ストアは書き込みを行いません。
var errNoChange = errors.New("no change")

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func notFound(jobID int64) error {
	return newError(CodeNotFound, fmt.Sprintf("job %d not found", jobID), nil)
}
