// Package apierr maps the internal apperror.Kind vocabulary to HTTP status
// codes and the {"error":{"code","message","details"}} envelope, the single
// place that translation happens (§7: "nothing below the ingress layer
// knows about HTTP").
package apierr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var statusByKind = map[apperror.Kind]int{
	apperror.KindInvalidInput:    http.StatusUnprocessableEntity,
	apperror.KindNotFound:        http.StatusNotFound,
	apperror.KindUnauthorized:    http.StatusUnauthorized,
	apperror.KindQuotaExceeded:   http.StatusPaymentRequired,
	apperror.KindConflict:        http.StatusConflict,
	apperror.KindTransportError:  http.StatusBadGateway,
	apperror.KindTimeout:         http.StatusGatewayTimeout,
	apperror.KindAssertionFailed: http.StatusInternalServerError,
	apperror.KindInternal:        http.StatusInternalServerError,
}

// Write sets the response to the status/envelope matching err's Kind. Errors
// that are not an *apperror.Error are treated as KindInternal and their
// message is not leaked to the caller.
func Write(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	var details map[string]string
	var appErr *apperror.Error
	if e, ok := err.(*apperror.Error); ok {
		appErr = e
	} else if e2, ok := asAppError(err); ok {
		appErr = e2
	}
	if appErr != nil {
		message = appErr.Message
		details = appErr.Details
	} else {
		kind = apperror.KindInternal
		status = http.StatusInternalServerError
		message = "internal server error"
	}

	c.JSON(status, gin.H{"error": gin.H{"code": string(kind), "message": message, "details": details}})
}

func asAppError(err error) (*apperror.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*apperror.Error); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// WriteBindError translates a gin binding failure into the 422 envelope with
// per-field details when the underlying error is a validator report.
func WriteBindError(c *gin.Context, err error) {
	details := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	Write(c, apperror.WithDetails(apperror.KindInvalidInput, "validation failed", details))
}
