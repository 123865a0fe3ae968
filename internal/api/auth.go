package api

import (
	"encoding/json"
	"net/http"
)

// SessionCookie carries the session credential issued by POST /auth/login.
const SessionCookie = "paddydryer_session"

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	PIN string `json:"pin"`
}

// activityRequest is the request body for POST /auth/activity.
type activityRequest struct {
	Kind string `json:"kind"`
}

// handleLogin starts an operator session from a PIN.
//
// A wrong PIN answers 401 with the attempts left; a locked terminal
// answers 429 with the seconds until PIN entry reopens.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	summary, err := s.sessions.Login(r.Context(), req.PIN)
	if s.prom != nil {
		s.prom.ObserveLogin(err)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    summary.Token,
		Path:     "/",
		MaxAge:   int(s.sessions.Policy().Timeout.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, summary)
}

// handleLogout ends the session. Logging out twice is not an error, but
// a live session can only be ended by the caller holding its credential.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Session(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if sess != nil && !sess.OwnedBy(sessionToken(r)) {
		writeUnauthorized(w, "login required")
		return
	}

	if err := s.sessions.Logout(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleSession reports the current operator.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.CurrentUser(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleActivity records an interaction signal from the UI. Unknown kinds
// are accepted and reported as not recorded.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var (
		recorded bool
		err      error
	)
	if s.monitor != nil {
		recorded, err = s.monitor.Signal(r.Context(), req.Kind)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}

// handleGetDraft returns the unsubmitted form saved for this session.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.sessions.Draft(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if draft == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleSaveDraft stores an unsubmitted form. The body is kept as sent.
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.sessions.SaveDraft(r.Context(), draft); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
