package httpapi

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lumenid.org/internal/audit"
	"lumenid.org/internal/obs"
	"lumenid.org/internal/oidc"
	"lumenid.org/internal/user"
)

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in</h1>
{{if .Error}}<p>{{.Error}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
<p><a href="/register{{if .ReturnURL}}?return_url={{.ReturnURLQuery}}{{end}}">Create an account</a></p>
</body></html>`))

var registerPage = template.Must(template.New("register").Parse(`<!doctype html>
<html><head><title>Register</title></head><body>
<h1>Create an account</h1>
{{if .Error}}<p>{{.Error}}</p>{{end}}
<form method="post" action="/register">
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Register</button>
</form>
</body></html>`))

var loggedOutPage = []byte(`<!doctype html>
<html><head><title>Signed out</title></head><body>
<h1>You have been signed out</h1>
</body></html>`)

type pageData struct {
	Error          string
	Email          string
	ReturnURL      string
	ReturnURLQuery string
}

func renderPage(w http.ResponseWriter, status int, tpl *template.Template, data pageData) {
	data.ReturnURLQuery = url.QueryEscape(data.ReturnURL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = tpl.Execute(w, data)
}

// Authorize is the authorization endpoint. Unauthenticated browsers are sent
// to the login page with the full authorization request as the return URL.
func (a *API) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx := r.Context()
	req := oidc.ParseAuthorizeRequest(r.URL.Query())

	flow, aerr := a.provider.BeginAuthorization(ctx, req)
	if aerr != nil {
		a.answerAuthorizeError(w, r, aerr)
		return
	}

	sess, err := a.sessions.FromRequest(ctx, r)
	if err != nil {
		returnURL := r.URL.RequestURI()
		http.Redirect(w, r, "/login?return_url="+url.QueryEscape(returnURL), http.StatusFound)
		return
	}

	if aerr := flow.Authenticate(sess, time.Now().UTC()); aerr != nil {
		a.answerAuthorizeError(w, r, aerr)
		return
	}
	target, aerr := a.provider.CompleteAuthorization(ctx, flow, sess)
	if aerr != nil {
		a.answerAuthorizeError(w, r, aerr)
		return
	}
	_ = audit.LogEvent(ctx, "authorization_granted", map[string]any{
		"client_id":     req.ClientID,
		"response_type": req.ResponseType,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// answerAuthorizeError redirects when the rejection carries a verified
// redirect URI and answers on this origin otherwise.
func (a *API) answerAuthorizeError(w http.ResponseWriter, r *http.Request, aerr *oidc.AuthorizeError) {
	if target := aerr.ErrorRedirect(); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":             aerr.Code,
		"error_description": aerr.Description,
	})
}

// Login serves the sign-in form and processes submissions.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		renderPage(w, http.StatusOK, loginPage, pageData{
			ReturnURL: r.URL.Query().Get("return_url"),
		})
	case http.MethodPost:
		a.loginSubmit(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form")
		return
	}
	ctx := r.Context()
	email := r.PostFormValue("email")
	returnURL := r.PostFormValue("return_url")

	u, err := a.users.VerifyCredentials(ctx, email, r.PostFormValue("password"))
	if err != nil {
		obs.ObserveLogin("failure")
		_ = audit.LogEvent(ctx, "login_failed", map[string]any{"email": user.NormalizeEmail(email)})
		if errors.Is(err, user.ErrInvalidCredentials) {
			// Sentinel text carries the package prefix; the page gets the
			// bare message.
			renderPage(w, http.StatusUnauthorized, loginPage, pageData{
				Error:     "login or password incorrect",
				Email:     email,
				ReturnURL: returnURL,
			})
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if _, err := a.sessions.SignIn(ctx, w, u.ID, u.Email, u.Roles); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.ObserveLogin("success")
	_ = audit.LogEvent(ctx, "login_succeeded", map[string]any{"user_id": u.ID})

	if !localPath(returnURL) {
		returnURL = "/"
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

// Register serves the account creation form and processes submissions. New
// accounts get the client role and are signed in immediately.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		renderPage(w, http.StatusOK, registerPage, pageData{
			ReturnURL: r.URL.Query().Get("return_url"),
		})
	case http.MethodPost:
		a.registerSubmit(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) registerSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form")
		return
	}
	ctx := r.Context()
	email := r.PostFormValue("email")
	returnURL := r.PostFormValue("return_url")

	u, err := a.users.Register(ctx, email, r.PostFormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, user.ErrAlreadyExists):
			renderPage(w, http.StatusConflict, registerPage, pageData{
				Error:     "an account with this email already exists",
				Email:     email,
				ReturnURL: returnURL,
			})
		case errors.Is(err, user.ErrInvalidInput):
			renderPage(w, http.StatusBadRequest, registerPage, pageData{
				Error:     strings.TrimPrefix(err.Error(), "user: invalid input: "),
				Email:     email,
				ReturnURL: returnURL,
			})
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if err := a.users.AssignRole(ctx, u.ID, user.RoleClient); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	u.Roles = []string{user.RoleClient}

	if _, err := a.sessions.SignIn(ctx, w, u.ID, u.Email, u.Roles); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(ctx, "user_registered", map[string]any{"user_id": u.ID})

	if !localPath(returnURL) {
		returnURL = "/"
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

// Logout terminates the session and redirects to a validated post-logout
// destination. Destinations that fail validation fall back to the local
// signed-out page.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	ctx := r.Context()

	sess, err := a.sessions.FromRequest(ctx, r)
	if err != nil {
		sess = nil
	}
	if err := a.sessions.SignOut(ctx, w, sess); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if sess != nil {
		_ = audit.LogEvent(ctx, "logout", map[string]any{"user_id": sess.Subject})
	}

	target := a.provider.ResolvePostLogoutRedirect(ctx,
		r.FormValue("client_id"),
		r.FormValue("post_logout_redirect_uri"),
	)
	http.Redirect(w, r, target, http.StatusFound)
}

// LoggedOut is the local landing page after sign-out.
func (a *API) LoggedOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(loggedOutPage)
}
