package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/httpusers/pkg/contextkeys"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/httputil"
	"github.com/platinummonkey/httpusers/pkg/permissions"
)

type grantRequest struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (s *Server) userPermissions(w http.ResponseWriter, r *http.Request) {
	grants, err := s.users.Permissions(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"permissions": grants})
}

// changeUserPermission allows on PUT and disallows on DELETE
func (s *Server) changeUserPermission(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	value, err := permissions.ParseValue(req.Value)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	change := s.users.Allow
	if r.Method == http.MethodDelete {
		change = s.users.Disallow
	}
	grants, err := change(r.Context(), mux.Vars(r)["username"], req.Name, value)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"permissions": grants})
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"permissions": list})
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"permission": p})
}

func (s *Server) createPermission(w http.ResponseWriter, r *http.Request) {
	var p permissions.Permission
	if !httputil.ParseJSONOrError(w, r, &p) {
		return
	}
	if err := s.catalog.Create(r.Context(), &p); err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.emitPermission(r, events.ActionCreate, p.Name)
	httputil.WriteCreated(w, map[string]any{"permission": p})
}

func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.catalog.Destroy(r.Context(), name); err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.emitPermission(r, events.ActionDestroy, name)
	httputil.WriteSuccess(w, map[string]any{"ok": true, "id": name})
}

func (s *Server) emitPermission(r *http.Request, action, name string) {
	s.events.Emit(r.Context(), events.Event{
		Resource: events.ResourcePermission,
		Action:   action,
		ID:       name,
		Actor:    contextkeys.GetUserID(r.Context()),
	})
}
