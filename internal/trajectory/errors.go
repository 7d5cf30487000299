package trajectory

import "errors"

var (
	ErrInvalidInput    = errors.New("entrada inválida")
	ErrNoActiveSession = errors.New("no hay recorrido activo")
	ErrStaleSession    = errors.New("recorrido activo inválido")
	ErrSessionNotFound = errors.New("no existe recorrido")
)

// ValidationError carries a caller-facing message and matches ErrInvalidInput.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }
