package devidp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	studo "github.com/Shmulls/Studo"
	"github.com/Shmulls/Studo/client"
	"github.com/Shmulls/Studo/internal/logger"
)

type createSignInRequest struct {
	Strategy                  string `json:"strategy"`
	Identifier                string `json:"identifier"`
	Password                  string `json:"password"`
	RedirectURL               string `json:"redirect_url"`
	ActionCompleteRedirectURL string `json:"action_complete_redirect_url"`
	CodeChallenge             string `json:"code_challenge"`
}

type attemptFirstFactorRequest struct {
	Strategy string `json:"strategy"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type updateMeRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (s *Server) handleCreateSignIn(w http.ResponseWriter, r *http.Request) {
	var req createSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeParamInvalid, "Invalid request body.", err.Error())
		return
	}

	switch {
	case req.Strategy == client.StrategyPassword:
		s.passwordSignIn(w, r, req)
	case req.Strategy == string(studo.ResetPasswordEmailCode):
		s.startReset(w, r, req)
	case strings.HasPrefix(req.Strategy, "oauth_"):
		s.startOAuth(w, r, req)
	default:
		writeError(w, http.StatusUnprocessableEntity, CodeParamInvalid, "Unsupported sign-in strategy.", req.Strategy)
	}
}

func (s *Server) passwordSignIn(w http.ResponseWriter, r *http.Request, req createSignInRequest) {
	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeParamMissing, "Enter your email address and password.", "")
		return
	}

	key := "password:" + normalizeEmail(req.Identifier)
	if s.records.locked(key, s.now()) {
		writeError(w, http.StatusTooManyRequests, CodeTooManyRequests, "Too many requests. Please try again in a bit.", "")
		return
	}

	user, err := s.users.Authenticate(req.Identifier, req.Password)
	switch {
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusUnprocessableEntity, CodeIdentifierNotFound, "Couldn't find your account.", "")
		return
	case errors.Is(err, ErrNoPassword):
		writeError(w, http.StatusUnprocessableEntity, CodeStrategyNotAllowed, "This account signs in with a social provider.", "")
		return
	case err != nil:
		s.records.recordFailure(key, s.now())
		s.logger.Info("password sign-in failed", slog.String("identifier", req.Identifier))
		writeError(w, http.StatusUnprocessableEntity, CodePasswordIncorrect, "Password is incorrect. Try again, or use another method.", "")
		return
	}

	s.records.clearFailures(key)
	sess := s.records.newSession(user.ID, s.now())
	s.logger.Info("signed in", slog.String("user", user.ID), logger.SessionID(sess.ID))
	writeJSON(w, http.StatusOK, client.SignInResource{
		ID:               "sia_" + randomHex(12),
		Status:           client.StatusComplete,
		Identifier:       user.Email,
		CreatedSessionID: sess.ID,
	})
}

func (s *Server) startReset(w http.ResponseWriter, r *http.Request, req createSignInRequest) {
	if req.Identifier == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeParamMissing, "Enter your email address.", "")
		return
	}
	user, err := s.users.FindByEmail(req.Identifier)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, CodeIdentifierNotFound, "Couldn't find your account.", "")
		return
	}

	code, err := generateCode(6)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong.", "")
		return
	}
	rs := &resetSignIn{
		ID:        "sia_" + randomHex(12),
		UserID:    user.ID,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: s.now().Add(ResetCodeExpiry),
	}
	s.records.putReset(rs)

	if err := s.mailer.SendResetCode(r.Context(), user.Email, code); err != nil {
		s.records.deleteReset(rs.ID)
		s.logger.Error("failed to send reset code", logger.Error(err))
		writeError(w, http.StatusBadGateway, "email_delivery_failed", "We couldn't send the reset code. Please try again.", "")
		return
	}

	writeJSON(w, http.StatusOK, client.SignInResource{
		ID:         rs.ID,
		Status:     client.StatusNeedsFirstFactor,
		Identifier: user.Email,
		FirstFactorVerification: &client.Verification{
			Status:   "unverified",
			Strategy: string(studo.ResetPasswordEmailCode),
		},
	})
}

// handleAttemptFirstFactor completes a password reset. A short password does
// not consume the code, so the user can retry with the same code.
func (s *Server) handleAttemptFirstFactor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req attemptFirstFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeParamInvalid, "Invalid request body.", err.Error())
		return
	}
	if req.Strategy != string(studo.ResetPasswordEmailCode) {
		writeError(w, http.StatusUnprocessableEntity, CodeParamInvalid, "Unsupported verification strategy.", req.Strategy)
		return
	}

	rs, err := s.records.getReset(id, s.now())
	switch {
	case errors.Is(err, errRecordExpired):
		writeError(w, http.StatusUnprocessableEntity, CodeVerificationExpired, "This verification has expired. Please start over.", "")
		return
	case err != nil:
		writeError(w, http.StatusNotFound, CodeNotFound, "Sign-in not found.", "")
		return
	}

	key := "reset:" + rs.ID
	if s.records.locked(key, s.now()) {
		writeError(w, http.StatusTooManyRequests, CodeTooManyRequests, "Too many requests. Please try again in a bit.", "")
		return
	}
	if req.Code != rs.Code {
		s.records.recordFailure(key, s.now())
		writeError(w, http.StatusUnprocessableEntity, CodeCodeIncorrect, "Incorrect code", "")
		return
	}
	if len(req.Password) < MinPasswordLength {
		writeError(w, http.StatusUnprocessableEntity, CodePasswordTooShort, "Passwords must be 8 characters or more.", "")
		return
	}

	if err := s.users.SetPassword(rs.UserID, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong.", err.Error())
		return
	}
	s.records.deleteReset(rs.ID)
	s.records.clearFailures(key)
	s.records.clearFailures("password:" + rs.Email)

	sess := s.records.newSession(rs.UserID, s.now())
	s.logger.Info("password reset", slog.String("user", rs.UserID), logger.SessionID(sess.ID))
	writeJSON(w, http.StatusOK, client.SignInResource{
		ID:               rs.ID,
		Status:           client.StatusComplete,
		Identifier:       rs.Email,
		CreatedSessionID: sess.ID,
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUser(sessionFromContext(r.Context()).UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "User not found.", "")
		return
	}
	writeJSON(w, http.StatusOK, userResource(user))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeParamInvalid, "Invalid request body.", err.Error())
		return
	}
	user, err := s.users.UpdateNames(sessionFromContext(r.Context()).UserID, req.FirstName, req.LastName)
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "User not found.", "")
		return
	}
	writeJSON(w, http.StatusOK, userResource(user))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	s.records.endSession(sess.ID)
	s.logger.Info("session ended", logger.SessionID(sess.ID))
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.ID, "status": "ended"})
}

func userResource(u *User) client.UserResource {
	return client.UserResource{
		ID:           u.ID,
		EmailAddress: u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
	}
}
