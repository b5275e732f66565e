package handlers

import (
	"net/http"

	"github.com/diewo77/go-quotations/auth"
	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/services"
)

type AuthHandler struct {
	users *services.UserService
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if httpx.IsJSONBody(r) {
		err := httpx.DecodeJSON(r, &c)
		return c, err
	}
	if err := r.ParseForm(); err != nil {
		return c, err
	}
	c.Email = r.FormValue("email")
	c.Password = r.FormValue("password")
	c.FirstName = r.FormValue("first_name")
	c.LastName = r.FormValue("last_name")
	return c, nil
}

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Page describes the login screen to clients that ask /auth for JSON.
func (h *AuthHandler) Page(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{
		"login":  "/api/auth/login",
		"signup": "/api/auth/signup",
	})
}

// Signup registers an account that waits for admin approval.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	u, err := h.users.Register(r.Context(), services.Signup{
		Email:     c.Email,
		Password:  c.Password,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	u, err := h.users.Authenticate(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, http.StatusOK, u)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, u *models.User) {
	token, err := auth.IssueToken(u.ID)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "session_error", nil)
		return
	}
	auth.CreateSession(w, u.ID)
	httpx.JSON(w, status, sessionResponse{User: u, Token: token})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}
