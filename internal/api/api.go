// Package api exposes the input registry over HTTP. Handlers are thin
// JSON mappers over registry outcomes; authentication and permission
// checks belong to the deployment's front proxy, not this core.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ChuLiYu/loghive/internal/activity"
	"github.com/ChuLiYu/loghive/internal/input"
	"github.com/ChuLiYu/loghive/internal/registry"
	"github.com/ChuLiYu/loghive/pkg/types"
)

// Handler serves the /system/inputs resource.
type Handler struct {
	reg      *registry.Registry
	activity *activity.Writer
	logger   *slog.Logger
}

// NewHandler builds the handler set.
func NewHandler(reg *registry.Registry, aw *activity.Writer) *Handler {
	return &Handler{
		reg:      reg,
		activity: aw,
		logger:   slog.With("component", "api"),
	}
}

// Routes mounts the resource on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/system/inputs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/types", h.listTypes)
		r.Get("/types/{inputType}", h.typeInfo)
		r.Get("/{inputID}", h.single)
		r.Delete("/{inputID}", h.terminate)
		r.Post("/{inputID}/launch", h.launchExisting)
		r.Post("/{inputID}/stop", h.stop)
		r.Post("/{inputID}/restart", h.restart)
	})
	return r
}

// launchRequest is the POST body for creating and launching an input.
type launchRequest struct {
	Type          string                 `json:"type"`
	Title         string                 `json:"title"`
	Global        bool                   `json:"global"`
	CreatorUserID string                 `json:"creator_user_id"`
	Configuration map[string]interface{} `json:"configuration"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var lr launchRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	inst, err := h.reg.Create(lr.Type)
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	inst.Title = lr.Title
	inst.Global = lr.Global
	inst.CreatorID = lr.CreatorUserID

	cfg := input.Configuration(lr.Configuration)
	if err := h.reg.CheckConfiguration(inst, cfg); err != nil {
		h.writeRegistryError(w, err)
		return
	}

	if err := h.reg.Persist(r.Context(), inst, cfg); err != nil {
		h.writeRegistryError(w, err)
		return
	}

	runtimeID := registry.NewRuntimeID()
	if err := h.reg.Launch(inst, runtimeID); err != nil {
		h.writeRegistryError(w, err)
		return
	}

	h.activity.Write("api", fmt.Sprintf("Launched input [%s]. Reason: REST request.", inst.Title))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"input_id":   string(runtimeID),
		"persist_id": inst.PersistID,
	})
}

func (h *Handler) single(w http.ResponseWriter, r *http.Request) {
	id := types.InputID(chi.URLParam(r, "inputID"))
	state, ok := h.reg.GetInputState(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such input on this node")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	states := h.reg.GetInputStates()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"inputs": states,
		"total":  len(states),
	})
}

func (h *Handler) terminate(w http.ResponseWriter, r *http.Request) {
	id := types.InputID(chi.URLParam(r, "inputID"))
	inst := h.reg.GetRunningInput(id)
	if inst == nil {
		writeError(w, http.StatusNotFound, "no such input on this node")
		return
	}

	h.activity.Write("api", fmt.Sprintf("Attempting to terminate input [%s]. Reason: REST request.", inst.Title))
	if err := h.reg.Terminate(id); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	if err := h.reg.CleanInput(r.Context(), inst); err != nil {
		h.logger.Error("failed to clean input record", "runtime_id", id, "error", err)
	}
	h.activity.Write("api", fmt.Sprintf("Terminated input [%s]. Reason: REST request.", inst.Title))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) launchExisting(w http.ResponseWriter, r *http.Request) {
	id := types.InputID(chi.URLParam(r, "inputID"))
	if err := h.reg.Relaunch(id); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	h.activity.Write("api", fmt.Sprintf("Launched existing input [%s]. Reason: REST request.", id))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	id := types.InputID(chi.URLParam(r, "inputID"))
	if err := h.reg.Stop(id); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	h.activity.Write("api", fmt.Sprintf("Stopped input [%s]. Reason: REST request.", id))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	id := types.InputID(chi.URLParam(r, "inputID"))
	if err := h.reg.Restart(id); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) listTypes(w http.ResponseWriter, _ *http.Request) {
	descriptors := h.reg.Descriptors()
	types := make([]map[string]interface{}, 0, len(descriptors))
	for _, d := range descriptors {
		types = append(types, descriptorInfo(d))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": types})
}

func (h *Handler) typeInfo(w http.ResponseWriter, r *http.Request) {
	inst, err := h.reg.Create(chi.URLParam(r, "inputType"))
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptorInfo(inst.Descriptor))
}

func descriptorInfo(d *input.Descriptor) map[string]interface{} {
	return map[string]interface{}{
		"type":                    d.Type,
		"name":                    d.Name,
		"is_exclusive":            d.Exclusive,
		"requested_configuration": d.Schema.Fields(),
		"link_to_docs":            d.DocsLink,
	}
}

// writeRegistryError maps the registry error taxonomy onto HTTP
// outcomes: not-found, validation failure, conflict.
func (h *Handler) writeRegistryError(w http.ResponseWriter, err error) {
	var cfgErr *input.ConfigurationError
	switch {
	case errors.Is(err, input.ErrNoSuchInputType),
		errors.Is(err, registry.ErrInputNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message": cfgErr.Error(),
			"fields":  cfgErr.Fields,
		})
	case errors.Is(err, registry.ErrInputTypeExclusive),
		errors.Is(err, registry.ErrInputActive),
		errors.Is(err, registry.ErrDuplicateRuntimeID):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
