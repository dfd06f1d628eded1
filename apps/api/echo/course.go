package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/user"
)

type courseApi struct {
	svc      course.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
	}
	active := activeUserMiddleware(api.userSvc, false)

	tg := g.Group("/tracks", jwt, active)
	tg.GET("", api.listTracks)
	tg.POST("", api.createTrack, ownerMiddleware())
	tg.POST("/refresh-status", api.refreshStatuses, adminMiddleware())
	tg.GET("/:id", api.retrieveTrack)
	tg.PUT("/:id", api.updateTrack, adminMiddleware(), api.trackManagerMiddleware)
	tg.DELETE("/:id", api.destroyTrack, adminMiddleware(), api.trackManagerMiddleware)
	tg.GET("/:id/tasks", api.listTasks)
	tg.POST("/:id/tasks", api.createTask, adminMiddleware(), api.trackManagerMiddleware)
	tg.POST("/:id/assign", api.toggleAssignment, ownerMiddleware())

	kg := g.Group("/tasks", jwt, active, adminMiddleware())
	kg.PUT("/:id", api.updateTask, api.taskManagerMiddleware)
	kg.DELETE("/:id", api.destroyTask, api.taskManagerMiddleware)
}

type (
	AssignRequest struct {
		AdminID string `json:"admin_id" validate:"required"`
	}

	AssignResponse struct {
		AdminID  string `json:"admin_id"`
		TrackID  string `json:"track_id"`
		Assigned bool   `json:"assigned"`
	}

	RefreshResponse struct {
		Updated []string `json:"updated"`
	}
)

// trackManagerMiddleware sets the `:id` Track as context object when the context admin manages it.
func (api *courseApi) trackManagerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := api.svc.GetTrack(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if err = api.checkManager(ctx, t.ID); err != nil {
			return err
		}
		ctx.Set(objectContextKey, t)
		return next(ctx)
	}
}

// taskManagerMiddleware sets the `:id` Task as context object when the context admin manages its track.
func (api *courseApi) taskManagerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := api.svc.GetTask(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if err = api.checkManager(ctx, t.TrackID); err != nil {
			return err
		}
		ctx.Set(objectContextKey, t)
		return next(ctx)
	}
}

func (api *courseApi) checkManager(ctx echo.Context, trackID string) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	ok, err := api.svc.CanManageTrack(ctx.Request().Context(), ctxUsr, trackID)
	if err != nil {
		return errors.Wrap(err, "checking track manager")
	}
	if !ok {
		return errHttpForbidden
	}
	return nil
}

// Handlers

// listTracks returns the visible schedule: every track for students and owners, the assigned ones for other admins.
func (api *courseApi) listTracks(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var tracks []course.Track
	if ctxUsr.IsAdmin() {
		tracks, err = api.svc.ListTracksFor(ctx.Request().Context(), ctxUsr)
	} else {
		tracks, err = api.svc.ListTracks(ctx.Request().Context())
	}
	if err != nil {
		return errors.Wrap(err, "listing tracks")
	}
	if tracks == nil {
		tracks = []course.Track{}
	}
	return ctx.JSON(http.StatusOK, tracks)
}

func (api *courseApi) createTrack(ctx echo.Context) error {
	var data course.NewTrack
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTrack")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.CreateTrack(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating track")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *courseApi) retrieveTrack(ctx echo.Context) error {
	t, err := api.svc.GetTrack(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *courseApi) updateTrack(ctx echo.Context) error {
	t, ok := ctx.Get(objectContextKey).(course.Track)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving track")
	}

	var data course.UpdateTrack
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTrack")
	}
	if err := data.Validate(t, api.validate); err != nil {
		return err
	}

	t, err := api.svc.UpdateTrack(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating track")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *courseApi) destroyTrack(ctx echo.Context) error {
	if err := api.svc.DeleteTrack(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting track")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) listTasks(ctx echo.Context) error {
	t, err := api.svc.GetTrack(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	tasks, err := api.svc.ListTasks(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "listing tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *courseApi) createTask(ctx echo.Context) error {
	t, ok := ctx.Get(objectContextKey).(course.Track)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving track")
	}

	var data course.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.CreateTask(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (api *courseApi) updateTask(ctx echo.Context) error {
	t, ok := ctx.Get(objectContextKey).(course.Task)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving task")
	}

	var data course.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.UpdateTask(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *courseApi) destroyTask(ctx echo.Context) error {
	if err := api.svc.DeleteTask(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) toggleAssignment(ctx echo.Context) error {
	var data AssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	data.AdminID = core.CleanString(data.AdminID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	t, err := api.svc.GetTrack(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	admin, err := api.userSvc.GetByID(ctx.Request().Context(), data.AdminID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "admin_id", Error: "user not found"})
		}
		return errors.Wrap(err, "finding admin")
	}

	assigned, err := api.svc.ToggleAssignment(ctx.Request().Context(), admin, t.ID)
	if err != nil {
		return errors.Wrap(err, "toggling assignment")
	}
	return ctx.JSON(http.StatusOK, AssignResponse{AdminID: admin.ID, TrackID: t.ID, Assigned: assigned})
}

func (api *courseApi) refreshStatuses(ctx echo.Context) error {
	updated, err := api.svc.RefreshStatuses(ctx.Request().Context(), core.NowFunc())
	if err != nil {
		return errors.Wrap(err, "refreshing track statuses")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{Updated: updated})
}
