package delivery

import "errors"

var (
	// ErrEnqueuerNil is a programming error: NewDispatcher needs an enqueuer.
	ErrEnqueuerNil = errors.New("enqueuer cannot be nil")

	// ErrDelivererNil is a programming error: NewHandler needs a deliverer.
	ErrDelivererNil = errors.New("deliverer cannot be nil")

	ErrInvalidJob     = errors.New("invalid webhook job")
	ErrDecodeJob      = errors.New("failed to decode webhook job payload")
	ErrEncodeJob      = errors.New("failed to encode webhook job payload")
	ErrDispatchFailed = errors.New("failed to dispatch webhook job")
)
