package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/0xDevansh/aries-week/core/user"
)

// adminMiddleware lets admins through; with roles, the admin must also hold one of them.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func ownerMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.RoleAdminOwner)
}

// activeUserMiddleware loads the context user and refuses deactivated accounts.
// With requireProfile, users that have not completed onboarding are refused too.
func activeUserMiddleware(svc user.Service, requireProfile bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			if requireProfile && !usr.IsProfileComplete() {
				return errProfileIncomplete
			}
			return next(ctx)
		}
	}
}
