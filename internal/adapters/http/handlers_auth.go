package http

import (
	"net/http"
	"strings"

	"github.com/remlyo/remlyo-api/internal/application"
)

type emailBody struct {
	Email string `json:"email"`
}

type tokenBody struct {
	Token string `json:"token"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[application.RegisterRequest](w, r, "register")
	if !ok {
		return
	}
	req.IPAddress = h.proxies.clientIP(r)
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	res, err := h.service.Register(r.Context(), req, key)
	reply(w, r, "register", http.StatusCreated, res, err)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[application.LoginRequest](w, r, "login")
	if !ok {
		return
	}
	req.IPAddress, req.UserAgent = h.proxies.clientIP(r), r.UserAgent()
	res, err := h.service.Login(r.Context(), req)
	reply(w, r, "login", http.StatusOK, res, err)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeUnauthorized(r.Context(), w, "refresh")
		return
	}
	res, err := h.service.Refresh(r.Context(), raw)
	reply(w, r, "refresh", http.StatusOK, res, err)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	acknowledge(w, r, "logout", "Logged out successfully", h.service.Logout(r.Context(), p))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.Me(r.Context(), p)
	reply(w, r, "me", http.StatusOK, res, err)
}

func (h *Handler) authStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AuthStatus(r.Context(), optionalPrincipal(r.Context()))
	reply(w, r, "auth_status", http.StatusOK, res, err)
}

func (h *Handler) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[emailBody](w, r, "password_reset_request")
	if !ok {
		return
	}
	acknowledge(w, r, "password_reset_request", "If the email exists, a password reset link has been sent",
		h.service.RequestPasswordReset(r.Context(), req.Email))
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[application.PasswordResetRequest](w, r, "password_reset")
	if !ok {
		return
	}
	acknowledge(w, r, "password_reset", "Password reset successful. You can now sign in with your new password.",
		h.service.ResetPassword(r.Context(), req))
}

func (h *Handler) passwordChange(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[application.PasswordChangeRequest](w, r, "password_change")
	if !ok {
		return
	}
	p, _ := principalFromContext(r.Context())
	acknowledge(w, r, "password_change", "Password changed", h.service.ChangePassword(r.Context(), p, req))
}

func (h *Handler) emailVerifyRequest(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	acknowledge(w, r, "email_verify_request", "Verification email sent", h.service.RequestEmailVerification(r.Context(), p))
}

func (h *Handler) emailVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[tokenBody](w, r, "email_verify")
	if !ok {
		return
	}
	acknowledge(w, r, "email_verify", "Email verified successfully", h.service.VerifyEmail(r.Context(), req.Token))
}
