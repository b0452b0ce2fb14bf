package api

import (
	"errors"
	"net/http"
	"strings"
)

// userRequest is the body of POST, PUT and DELETE /users.
type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// UsersHandler handles registration requests.
type UsersHandler struct {
	deps UserDependencies
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserDependencies) *UsersHandler {
	return &UsersHandler{deps: deps}
}

// HandleUsers handles POST (register), PUT (update) and DELETE (remove) /users.
func (h *UsersHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, "User request failed", err)
			return
		}
	default:
		writeMethodNotAllowed(w, http.MethodPost, http.MethodPut, http.MethodDelete)
		return
	}

	ctx := r.Context()
	switch r.Method {
	case http.MethodPost:
		reg, err := h.deps.AddUser(ctx, req.Name, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reg)
	case http.MethodPut:
		reply, err := h.deps.UpdateUser(ctx, req.Name, req.Email, req.Token)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	case http.MethodDelete:
		reply, err := h.deps.RemoveUser(ctx, req.Name, req.Email, req.Token)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// HandleUserByToken handles GET (details) and HEAD (existence) /users/{token}.
func (h *UsersHandler) HandleUserByToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/users/")
	if token == "" || strings.Contains(token, "/") {
		writeBadRequest(w, "User request failed", errors.New("missing token"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		details, err := h.deps.GetUser(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	case http.MethodHead:
		if _, err := h.deps.ExistsToken(r.Context(), token); err != nil {
			w.WriteHeader(statusFor(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodHead)
	}
}
