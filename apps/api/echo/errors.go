package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errProfileIncomplete    = echo.NewHTTPError(http.StatusForbidden, "profile incomplete")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")

	// sentinelCodes maps the domain errors to their HTTP status.
	sentinelCodes = map[error]int{
		user.ErrNotFound:              http.StatusNotFound,
		user.ErrEmailExists:           http.StatusConflict,
		user.ErrUsernameExists:        http.StatusConflict,
		course.ErrTrackNotFound:       http.StatusNotFound,
		course.ErrTaskNotFound:        http.StatusNotFound,
		course.ErrNotAnAdmin:          http.StatusBadRequest,
		progress.ErrNotFound:          http.StatusNotFound,
		progress.ErrInvalidStatus:     http.StatusBadRequest,
		progress.ErrInvalidTransition: http.StatusConflict,
		progress.ErrTrackIncomplete:   http.StatusConflict,
		progress.ErrTrackUpcoming:     http.StatusConflict,
	}
)

// sentinelCode looks err up in sentinelCodes.
// Map indexing is not used: err may hold an unhashable type (validator.ValidationErrors).
func sentinelCode(err error) (int, bool) {
	for sentinel, code := range sentinelCodes {
		if err == sentinel {
			return code, true
		}
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(
	logger core.Logger,
	translator ut.Translator,
	signalShutdown func(),
) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if sentinel, ok := sentinelCode(cause); ok {
			code = sentinel
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if fields := origErr.FieldMap(); fields != nil {
					message = fields
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
