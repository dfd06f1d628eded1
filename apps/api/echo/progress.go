package echoapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
	notifysvc "github.com/0xDevansh/aries-week/services/notify"
)

// SSE event names
const (
	eventDashboard = "dashboard"
	eventHeartbeat = "heartbeat"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

type progressApi struct {
	svc      progress.Service
	userSvc  user.Service
	broker   *notifysvc.Broker
	validate *validator.Validate
	logger   core.Logger
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps ServerDeps) {
	api := progressApi{
		svc:      deps.ProgressSvc,
		userSvc:  deps.UserSvc,
		broker:   deps.Broker,
		validate: deps.Validate,
		logger:   deps.Logger,
	}

	pg := g.Group("/progress", jwt, activeUserMiddleware(api.userSvc, true))
	pg.GET("/dashboard", api.dashboard)
	pg.GET("/events", api.events)
	pg.PUT("/tasks/:id", api.setTaskStatus)
	pg.PUT("/tracks/:id", api.setTrackStatus)
	pg.POST("/tracks/:id/complete-week", api.completeWeek)
}

type CompleteWeekResponse struct {
	NextTrackID string `json:"next_track_id"`
}

// Handlers

func (api *progressApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	sum, err := api.svc.Dashboard(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *progressApi) setTaskStatus(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data progress.SetTaskStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetTaskStatus")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.SetTaskStatus(ctx.Request().Context(), usr.ID, ctx.Param("id"), data.Status, data.Notes)
	if err != nil {
		return errors.Wrap(err, "setting task status")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *progressApi) setTrackStatus(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data progress.SetTrackStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetTrackStatus")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.SetTrackStatus(ctx.Request().Context(), usr.ID, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting track status")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *progressApi) completeWeek(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	next, err := api.svc.CompleteWeek(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing week")
	}
	return ctx.JSON(http.StatusOK, CompleteWeekResponse{NextTrackID: next})
}

// events streams the user's dashboard: once on connect, then after every change of their progress.
func (api *progressApi) events(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if api.broker == nil {
		return errHttpNotFound
	}

	sub := api.broker.Subscribe(usr.ID)
	defer sub.Cancel()

	sum, err := api.svc.Dashboard(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if err = writeSSE(res, eventDashboard, sum); err != nil {
		return nil // client gone
	}
	res.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	reqCtx := ctx.Request().Context()
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-heartbeat.C:
			err = writeSSE(res, eventHeartbeat, echo.Map{"timestamp": core.NowFunc().UTC().Format(time.RFC3339)})
		case _, ok := <-sub.C:
			if !ok {
				return nil
			}
			if sum, err = api.svc.Dashboard(reqCtx, usr.ID); err != nil {
				api.logger.Error("computing dashboard event", err, usr)
				continue
			}
			err = writeSSE(res, eventDashboard, sum)
		}
		if err != nil {
			return nil
		}
		res.Flush()
	}
}

// writeSSE writes a single SSE event to w.
func writeSSE(w io.Writer, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
