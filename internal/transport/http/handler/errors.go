package handler

import (
	"errors"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
)

// mapNotFound converts a repository sentinel error to the apperror
// vocabulary apierr.Write understands. Handlers pass the specific sentinel
// they expect (ErrTaskNotFound, ErrMonitorNotFound, ...) so an unrelated
// error is never misreported as a 404.
func mapNotFound(err error, sentinel error) error {
	if errors.Is(err, sentinel) {
		return apperror.New(apperror.KindNotFound, sentinel.Error())
	}
	return err
}
