package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SUF145/call-geo/common/jwt"
	"github.com/SUF145/call-geo/common/middleware"
	"github.com/SUF145/call-geo/common/request"
	"github.com/SUF145/call-geo/common/response"
	"github.com/SUF145/call-geo/internal/boot"
	"github.com/SUF145/call-geo/internal/bridge"
	"github.com/SUF145/call-geo/internal/location"
	"github.com/SUF145/call-geo/internal/notify"
	"github.com/SUF145/call-geo/internal/prefs"
	"github.com/SUF145/call-geo/internal/tracker"
)

type BootRequest struct {
	Action string `json:"action" validate:"required"`
}

type StartRequest struct {
	CallbackHandle int64 `json:"callback_handle" validate:"required"`
}

type FixesRequest struct {
	Fixes []location.Fix `json:"fixes" validate:"required,min=1,dive"`
}

type PermissionRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

type CallbackRequest struct {
	EntryPoint string `json:"entry_point" validate:"required,max=256"`
}

type CallbackResponse struct {
	bridge.Entry
	Token string `json:"token"`
}

type StatusResponse struct {
	Preference   prefs.TrackingPreference `json:"preference"`
	Running      bool                     `json:"running"`
	Service      *tracker.Status          `json:"service,omitempty"`
	Permission   bool                     `json:"location_permission"`
	PeerAttached bool                     `json:"peer_attached"`
	Peers        int                      `json:"peers"`
}

// Boot delivers a system boot signal to the restorer.
func (app *Config) Boot(w http.ResponseWriter, r *http.Request) {
	var req BootRequest
	if request.HandleError(w, request.ReadAndValidate(w, r, &req)) {
		return
	}

	started, err := app.Restorer.OnReceive(r.Context(), req.Action)
	if err != nil {
		middleware.GetRequestLogger(r.Context()).Error("Boot restore failed", "action", req.Action, "error", err)
		response.InternalServerError(w, "Failed to restore tracking")
		return
	}

	response.Success(w, "Boot signal processed", map[string]interface{}{
		"action":     req.Action,
		"recognized": boot.IsBootAction(req.Action),
		"started":    started,
	})
}

// StartTracking persists the preference and starts the reporting process
// for a registered callback handle.
func (app *Config) StartTracking(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if request.HandleError(w, request.ReadAndValidate(w, r, &req)) {
		return
	}
	reqLogger := middleware.GetRequestLogger(r.Context())

	if _, err := app.Registry.Lookup(r.Context(), req.CallbackHandle); err != nil {
		if errors.Is(err, bridge.ErrCallbackNotFound) {
			response.NotFound(w, "Callback handle is not registered")
			return
		}
		reqLogger.Error("Failed to look up callback handle", "error", err)
		response.InternalServerError(w, "Failed to look up callback handle")
		return
	}

	pref := prefs.TrackingPreference{Enabled: true, CallbackHandle: req.CallbackHandle}
	if err := app.Prefs.Save(r.Context(), pref); err != nil {
		reqLogger.Error("Failed to save tracking preference", "error", err)
		response.InternalServerError(w, "Failed to save tracking preference")
		return
	}

	if err := app.Supervisor.Start(r.Context(), req.CallbackHandle); err != nil {
		reqLogger.Error("Failed to start tracking service", "error", err)
		response.InternalServerError(w, "Failed to start tracking service")
		return
	}

	reqLogger.Info("Tracking started", "callback_handle", req.CallbackHandle)
	response.Success(w, "Tracking started", app.status(r))
}

// StopTracking clears the preference and destroys the reporting process.
func (app *Config) StopTracking(w http.ResponseWriter, r *http.Request) {
	reqLogger := middleware.GetRequestLogger(r.Context())

	if err := app.Prefs.Save(r.Context(), prefs.TrackingPreference{}); err != nil {
		reqLogger.Error("Failed to save tracking preference", "error", err)
		response.InternalServerError(w, "Failed to save tracking preference")
		return
	}

	stopped, err := app.Supervisor.Stop(r.Context())
	if err != nil {
		reqLogger.Warn("Tracking service stopped with error", "error", err)
	}

	response.Success(w, "Tracking stopped", map[string]bool{"stopped": stopped})
}

func (app *Config) TrackingStatus(w http.ResponseWriter, r *http.Request) {
	response.Success(w, "Tracking status", app.status(r))
}

func (app *Config) status(r *http.Request) StatusResponse {
	pref, err := app.Prefs.Load(r.Context())
	if err != nil {
		middleware.GetRequestLogger(r.Context()).Warn("Failed to load tracking preference", "error", err)
	}

	out := StatusResponse{
		Preference: pref,
		Permission: app.Provider.Permitted(),
		Peers:      app.Hub.Peers(),
	}
	if svc := app.Supervisor.Current(); svc != nil {
		st := svc.Status()
		out.Running = true
		out.Service = &st
		out.PeerAttached = st.CallbackHandle != 0 && app.Hub.Connected(st.CallbackHandle)
	}
	return out
}

// UploadFixes feeds device fixes into the location provider.
func (app *Config) UploadFixes(w http.ResponseWriter, r *http.Request) {
	var req FixesRequest
	if request.HandleError(w, request.ReadAndValidate(w, r, &req)) {
		return
	}

	if !app.Provider.Permitted() {
		response.WriteJSON(w, http.StatusForbidden, response.Response{
			Error:   true,
			Message: location.ErrPermissionDenied.Error(),
		})
		return
	}

	delivered := app.Provider.Ingest(r.Context(), req.Fixes...)
	response.Accepted(w, "Fixes accepted", map[string]int{
		"received":  len(req.Fixes),
		"delivered": delivered,
	})
}

// ArchivedFixes lists the newest archived fixes when an archive is configured.
func (app *Config) ArchivedFixes(w http.ResponseWriter, r *http.Request) {
	if app.Archive == nil {
		response.ServiceUnavailable(w, "Fix archive is not configured")
		return
	}
	limit, ok := queryLimit(w, r, app.Settings.HistoryLimit)
	if !ok {
		return
	}

	records, err := app.Archive.Recent(r.Context(), int(limit))
	if err != nil {
		middleware.GetRequestLogger(r.Context()).Error("Failed to read fix archive", "error", err)
		response.InternalServerError(w, "Failed to read fix archive")
		return
	}
	response.Success(w, "Archived fixes", records)
}

// SetPermission grants or revokes location permission. Revoking drops every
// active subscription.
func (app *Config) SetPermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if request.HandleError(w, request.ReadAndValidate(w, r, &req)) {
		return
	}

	app.Provider.SetPermission(*req.Granted)
	middleware.GetRequestLogger(r.Context()).Info("Location permission changed", "granted", *req.Granted)
	response.Success(w, "Location permission updated", map[string]bool{"granted": *req.Granted})
}

// RegisterCallback registers an application-logic entry point and issues the
// token its peer connects with.
func (app *Config) RegisterCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if request.HandleError(w, request.ReadAndValidate(w, r, &req)) {
		return
	}
	reqLogger := middleware.GetRequestLogger(r.Context())

	entry, err := app.Registry.Register(r.Context(), req.EntryPoint)
	if err != nil {
		reqLogger.Error("Failed to register callback", "error", err)
		response.InternalServerError(w, "Failed to register callback")
		return
	}

	token, err := jwt.GenerateToken(entry.Handle, entry.EntryPoint, app.Settings.JWTSecret, app.Settings.TokenExpiry)
	if err != nil {
		reqLogger.Error("Failed to sign peer token", "error", err)
		response.InternalServerError(w, "Failed to issue token")
		return
	}

	reqLogger.Info("Callback registered", "entry_point", entry.EntryPoint, "callback_handle", entry.Handle)
	response.Created(w, "Callback registered", CallbackResponse{Entry: entry, Token: token})
}

func (app *Config) ActiveNotifications(w http.ResponseWriter, r *http.Request) {
	response.Success(w, "Active notifications", map[string]interface{}{
		"channels":      app.Tray.Channels(),
		"notifications": app.Tray.Active(),
	})
}

func (app *Config) NotificationHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, app.Settings.HistoryLimit)
	if !ok {
		return
	}

	items, err := app.History.Recent(r.Context(), limit)
	if err != nil {
		middleware.GetRequestLogger(r.Context()).Error("Failed to read notification history", "error", err)
		response.InternalServerError(w, "Failed to read notification history")
		return
	}
	if items == nil {
		items = []notify.Notification{}
	}
	response.Success(w, "Notification history", items)
}

// queryLimit reads an optional positive ?limit=, answering 400 when malformed.
func queryLimit(w http.ResponseWriter, r *http.Request, fallback int64) (int64, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		response.BadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
