package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/httpusers/pkg/httputil"
	"github.com/platinummonkey/httpusers/pkg/users"
)

// minKeyLength rejects bodies too short to be a public key
const minKeyLength = 32

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) listAllKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.users.Keys(r.Context(), "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"keys": keys})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.users.Keys(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"keys": keys})
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := s.users.GetKey(r.Context(), vars["username"], vars["name"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"key": key.Key})
}

func (s *Server) addKey(w http.ResponseWriter, r *http.Request) {
	s.saveKey(w, r, users.DefaultKeyName)
}

func (s *Server) putKey(w http.ResponseWriter, r *http.Request) {
	s.saveKey(w, r, mux.Vars(r)["name"])
}

func (s *Server) saveKey(w http.ResponseWriter, r *http.Request, name string) {
	var req keyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Key) < minKeyLength {
		httputil.WriteBadRequest(w, "Invalid key")
		return
	}
	key, err := s.users.AddKey(r.Context(), mux.Vars(r)["username"], name, req.Key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{"username": key.Username, "name": key.Name})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.users.DeleteKey(r.Context(), vars["username"], vars["name"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"ok": true, "id": vars["name"]})
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"apiTokens": s.view(r, u).APITokens})
}

func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	result, err := s.users.CreateAPIToken(r.Context(), mux.Vars(r)["username"])
	s.writeToken(w, result, err)
}

func (s *Server) setToken(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.users.SetAPIToken(r.Context(), vars["username"], vars["id"])
	s.writeToken(w, result, err)
}

func (s *Server) writeToken(w http.ResponseWriter, result *users.TokenResult, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{
		result.Label: result.Token,
		"operation":  result.Operation,
	})
}

func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.users.DeleteAPIToken(r.Context(), vars["username"], vars["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]any{"ok": true, "id": vars["id"]})
}

func (s *Server) listThirdParty(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.users.ThirdPartyTokens(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, tokens)
}

func (s *Server) addThirdParty(w http.ResponseWriter, r *http.Request) {
	var tok users.ThirdPartyToken
	if !httputil.ParseJSONOrError(w, r, &tok) {
		return
	}
	s.saveThirdParty(w, r, tok)
}

func (s *Server) putThirdParty(w http.ResponseWriter, r *http.Request) {
	var tok users.ThirdPartyToken
	if !httputil.ParseJSONOrError(w, r, &tok) {
		return
	}
	tok.ID = mux.Vars(r)["id"]
	s.saveThirdParty(w, r, tok)
}

func (s *Server) saveThirdParty(w http.ResponseWriter, r *http.Request, tok users.ThirdPartyToken) {
	tok.Operation = ""
	saved, err := s.users.AddThirdPartyToken(r.Context(), mux.Vars(r)["username"], tok)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, saved)
}

func (s *Server) deleteThirdParty(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deleted, err := s.users.DeleteThirdPartyToken(r.Context(), vars["username"], vars["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]any{"ok": true, "id": vars["id"], "deleted": deleted})
}
