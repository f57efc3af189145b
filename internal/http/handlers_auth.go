package http

import (
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	u, err := s.svc.Accounts.Register(r.Context(), body.Get("email"), body.Get("name"), body.Get("password"))
	if isHTMX(r) {
		if err != nil {
			writeHTMLError(w, r, err)
			return
		}
		NewHTMXResponse().
			Status(http.StatusCreated).
			BodyHTML(`<div class="success">Account created, you can sign in now.</div>`).
			Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	sess, err := s.svc.Accounts.Login(r.Context(), body.Get("email"), body.Get("password"))
	if err != nil {
		if isHTMX(r) {
			writeHTMLError(w, r, err)
			return
		}
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, auth.SessionCookie(sess.Token, int(s.issuer.TTL().Seconds()), s.secure))
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.SessionCookie("", -1, s.secure))
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Accounts.Me(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// sessionOwner resolves the signed-in user for routes that are not behind the
// auth middleware. ok is false when the request carries no valid session.
func (s *Server) sessionOwner(r *http.Request) (*http.Request, bool) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return r, false
	}
	id, _, err := s.issuer.Parse(token)
	if err != nil {
		return r, false
	}
	return r.WithContext(core.WithOwner(r.Context(), id)), true
}
