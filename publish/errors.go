package publish

import "errors"

// Delivery errors. Use errors.Is to check for them.
var (
	// ErrConnectTimeout is returned when the connection was not established
	// within the connect timeout. Nothing was sent.
	ErrConnectTimeout = errors.New("publish: connect timed out")

	// ErrConnectFailed is returned for any other connection failure, such as
	// a refused connection. Nothing was sent.
	ErrConnectFailed = errors.New("publish: connect failed")

	// ErrSendFailure is returned when the message could not be written fully.
	ErrSendFailure = errors.New("publish: send failed")

	// ErrDisabled is returned when constructing a sink that is switched off.
	ErrDisabled = errors.New("publish: sink disabled")
)
