package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrChannelClosed   = fmt.Errorf("channel closed")
	ErrMessageDropped  = fmt.Errorf("message dropped before being applied")
	ErrMessagePanic    = fmt.Errorf("message update panicked")
	ErrHookPanic       = fmt.Errorf("lifecycle hook panicked")
	ErrRenderFailed    = fmt.Errorf("render failed")
	ErrEntryEjected    = fmt.Errorf("entry ejected")
	ErrInvalidNavState = fmt.Errorf("invalid navigation state")
	ErrMountPoint      = fmt.Errorf("mount point unavailable")
	ErrBusClosed       = fmt.Errorf("bus closed")
	ErrConfig          = fmt.Errorf("invalid configuration")
)
