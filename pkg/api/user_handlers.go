package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/httputil"
	"github.com/platinummonkey/httpusers/pkg/middleware"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
)

const confirmedMessage = "Your ninja status has been confirmed!"

// view projects u for the caller. Reset shakes are never echoed and
// invite codes only to callers that can confirm accounts.
func (s *Server) view(r *http.Request, u *users.User) users.View {
	var method users.AuthMethod
	if au := middleware.GetAuthUser(r); au != nil {
		method = au.AuthMethod
	}
	v := users.Restricted(u, method)
	v.Shake = ""
	if !s.auth.Can(r, permissions.ModifyUsers, permissions.NoValue) &&
		!s.auth.Can(r, permissions.ConfirmUsers, permissions.NoValue) {
		v.InviteCode = ""
	}
	return v
}

func (s *Server) views(r *http.Request, list []*users.User) []users.View {
	out := make([]users.View, 0, len(list))
	for _, u := range list {
		out = append(out, s.view(r, u))
	}
	return out
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req users.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	u, err := s.users.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]any{"user": s.view(r, u)})
}

func (s *Server) userAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := s.users.Available(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"available": available})
}

func (s *Server) emailTaken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if body.Email == "" {
		httputil.WriteBadRequest(w, "Please provide an email address")
		return
	}
	taken, err := s.users.EmailTaken(r.Context(), body.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"taken": taken})
}

func (s *Server) confirmUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InviteCode string `json:"inviteCode"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	var actor *users.User
	if au := middleware.GetAuthUser(r); au != nil {
		actor = au.User
	}
	result, err := s.users.Confirm(r.Context(), actor, mux.Vars(r)["username"], body.InviteCode)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := map[string]any{
		"message":     confirmedMessage,
		"hasPassword": result.HasPassword,
	}
	if result.Shake != "" {
		resp["shake"] = result.Shake
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Shake       string `json:"shake"`
		NewPassword string `json:"new-password"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if body.Shake != "" && body.NewPassword == "" {
		httputil.WriteBadRequest(w, "A new password must be submitted with your shake.")
		return
	}

	_, ok, err := s.users.Forgot(r.Context(), mux.Vars(r)["username"], users.ForgotRequest{
		Shake:       body.Shake,
		NewPassword: body.NewPassword,
	})
	switch {
	case err != nil:
		httputil.WriteError(w, err)
	case !ok && body.Shake == "":
		httputil.WriteError(w, apierrors.NotAuthorized("Cannot reset password for inactive account."))
	case !ok:
		httputil.WriteForbidden(w, "Invalid shake")
	default:
		httputil.WriteSuccess(w, map[string]bool{"ok": true})
	}
}

func (s *Server) authInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]any{
		"user":       middleware.GetAuthUser(r).Username(),
		"authorized": true,
	})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	au := middleware.GetAuthUser(r)
	httputil.WriteSuccess(w, map[string]any{"user": s.view(r, au.User)})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.All(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"users": s.views(r, list)})
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.Search(r.Context(), mux.Vars(r)["partial"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"users": s.views(r, list)})
}

func (s *Server) userResource(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		s.updateUser(w, r)
	case http.MethodDelete:
		s.deleteUser(w, r)
	default:
		s.getUser(w, r)
	}
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"user": s.view(r, u)})
}

type updateUserRequest struct {
	Email    *string        `json:"email,omitempty"`
	Password *string        `json:"password,omitempty"`
	Profile  map[string]any `json:"profile,omitempty"`
	Status   *users.Status  `json:"status,omitempty"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	// Status changes are an administrative action
	if req.Status != nil && !s.auth.Can(r, permissions.ModifyUsers, permissions.NoValue) {
		httputil.WriteForbidden(w, "Missing permissions: "+permissions.ModifyUsers)
		return
	}

	u, err := s.users.Update(r.Context(), mux.Vars(r)["username"], users.Patch{
		Email:    req.Email,
		Password: req.Password,
		Profile:  req.Profile,
		Status:   req.Status,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"user": s.view(r, u)})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	username := users.Normalize(mux.Vars(r)["username"])
	if err := s.users.Destroy(r.Context(), username); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"ok": true, "id": username})
}
