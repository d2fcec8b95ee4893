package errors

// FromError converts any error to Errno.
// Errno values found anywhere in the wrap chain are returned as is;
// everything else is wrapped as ErrInternal.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// GetCode returns the error code from an error.
// Returns -1 if the error chain holds no Errno.
func GetCode(err error) int {
	var e *Errno
	if As(err, &e) {
		return e.Code
	}
	return -1
}
