package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/httputil"
	"github.com/platinummonkey/httpusers/pkg/middleware"
	"github.com/platinummonkey/httpusers/pkg/orgs"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
)

type organizationRequest struct {
	Profile map[string]any `json:"profile,omitempty"`
}

// requireOwner loads the organization named in the path and checks the
// caller owns it. Superusers pass as owners of every organization.
func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request) (*orgs.Organization, bool) {
	org, err := s.orgs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if !s.ownerOrSuperuser(r, org) {
		httputil.WriteForbidden(w, "Not owner.")
		return nil, false
	}
	return org, true
}

func (s *Server) ownerOrSuperuser(r *http.Request, org *orgs.Organization) bool {
	return org.IsOwner(middleware.GetAuthUser(r).Username()) ||
		s.auth.Can(r, permissions.Superuser, permissions.NoValue)
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	var (
		list []*orgs.Organization
		err  error
	)
	switch {
	case httputil.ParseQueryString(r, "owner", "") != "":
		list, err = s.orgs.ByOwner(r.Context(), httputil.ParseQueryString(r, "owner", ""))
	case s.auth.Can(r, permissions.ViewAllUsers, permissions.NoValue):
		list, err = s.orgs.List(r.Context())
	default:
		list, err = s.orgs.ByMember(r.Context(), middleware.GetAuthUser(r).Username())
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"organizations": list})
}

func (s *Server) organizationAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := s.orgs.Available(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"available": available})
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.orgs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := s.orgs.Create(r.Context(), middleware.GetAuthUser(r).Username(), mux.Vars(r)["id"], req.Profile)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// putOrganization creates the organization, or replaces its profile when
// it already exists and the caller owns it
func (s *Server) putOrganization(w http.ResponseWriter, r *http.Request) {
	existing, err := s.orgs.Get(r.Context(), mux.Vars(r)["id"])
	if apierrors.IsNotFound(err) {
		s.createOrganization(w, r)
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !s.ownerOrSuperuser(r, existing) {
		httputil.WriteForbidden(w, "Not owner.")
		return
	}

	var req organizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := s.orgs.Update(r.Context(), existing.Name, req.Profile)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if err := s.orgs.Destroy(r.Context(), org.Name); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"ok": true, "id": org.Name})
}

func (s *Server) organizationMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.orgs.Members(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"members": members})
}

func (s *Server) addOrganizationMember(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	s.writeOrganization(w)(s.orgs.AddMember(r.Context(), org.Name, mux.Vars(r)["member"]))
}

// removeOrganizationMember lets owners remove anyone and members leave
func (s *Server) removeOrganizationMember(w http.ResponseWriter, r *http.Request) {
	org, err := s.orgs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	member := users.Normalize(mux.Vars(r)["member"])
	if member != middleware.GetAuthUser(r).Username() && !s.ownerOrSuperuser(r, org) {
		httputil.WriteForbidden(w, "Not owner.")
		return
	}
	s.writeOrganization(w)(s.orgs.RemoveMember(r.Context(), org.Name, member))
}

func (s *Server) addOrganizationOwner(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	s.writeOrganization(w)(s.orgs.AddOwner(r.Context(), org.Name, mux.Vars(r)["owner"]))
}

func (s *Server) removeOrganizationOwner(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	s.writeOrganization(w)(s.orgs.RemoveOwner(r.Context(), org.Name, mux.Vars(r)["owner"]))
}

func (s *Server) writeOrganization(w http.ResponseWriter) func(*orgs.Organization, error) {
	return func(org *orgs.Organization, err error) {
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteSuccess(w, org)
	}
}
