// Package convo - errors.go
// Defines session-specific errors.

package convo

import "errors"

var (
	ErrInvalidContextType    = errors.New("context or instruction must be text or a role/content message")
	ErrInvalidInputType      = errors.New("history must be a sequence of role/content messages")
	ErrMaxRetriesExceeded    = errors.New("maximum number of retries reached")
	ErrEmptyResponse         = errors.New("received empty choices from the API")
	ErrInvalidResponseFormat = errors.New("the response from the model is not valid")
)
