package webhook

import "github.com/pkg/errors"

// ErrSendFailed matches every SendError through errors.Is.
var ErrSendFailed = errors.New("webhook send failed")

// SendError describes a failed delivery: transport failure, non-2xx status,
// or an unparseable body.
type SendError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return ErrSendFailed.Error()
	}
	return e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool { return target == ErrSendFailed }
