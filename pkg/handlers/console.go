package handlers

import (
	"crypto/subtle"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/auth"
	"github.com/orchestra-run/queryweave/pkg/config"
	"github.com/orchestra-run/queryweave/pkg/llm"
)

// ConsoleHandler serves the operator debug console: a session-guarded page
// that shows the configured LLM roles and lets the operator probe each
// endpoint's connectivity without touching the query path.
type ConsoleHandler struct {
	cfg    *config.Config
	tester llm.ConnectionTester
	logger *zap.Logger
}

// NewConsoleHandler creates a ConsoleHandler.
func NewConsoleHandler(cfg *config.Config, tester llm.ConnectionTester, logger *zap.Logger) *ConsoleHandler {
	if tester == nil {
		tester = llm.NewConnectionTester()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleHandler{cfg: cfg, tester: tester, logger: logger.Named("console")}
}

// RegisterRoutes registers the console's routes on the given mux.
func (h *ConsoleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/console", h.Show)
	mux.HandleFunc("POST /debug/console/login", h.Login)
	mux.HandleFunc("POST /debug/console/test-llm", h.TestLLM)
}

var consoleTemplate = template.Must(template.New("console").Parse(`<!doctype html>
<html><head><title>queryweave console</title></head><body>
<h1>queryweave {{.Version}} ({{.Env}})</h1>
{{if not .Authenticated}}
<form method="post" action="/debug/console/login">
  <input type="password" name="secret" placeholder="session secret">
  <button type="submit">Log in</button>
</form>
{{else}}
<h2>LLM roles</h2>
<table border="1" cellpadding="4">
<tr><th>Role</th><th>Provider</th><th>Model</th><th>Endpoint</th><th></th></tr>
{{range .Roles}}
<tr>
  <td>{{.Role}}</td><td>{{.Provider}}</td><td>{{.Model}}</td><td>{{.Endpoint}}</td>
  <td><form method="post" action="/debug/console/test-llm">
    <input type="hidden" name="role" value="{{.Role}}">
    <button type="submit">Test</button>
  </form></td>
</tr>
{{end}}
</table>
{{if .TestResult}}<h2>Last test</h2><pre>{{.TestResult}}</pre>{{end}}
{{end}}
</body></html>`))

type consoleRole struct {
	Role     string
	Provider string
	Model    string
	Endpoint string
}

type consoleView struct {
	Version       string
	Env           string
	Authenticated bool
	Roles         []consoleRole
	TestResult    string
}

func (h *ConsoleHandler) view(r *http.Request, testResult string) consoleView {
	v := consoleView{
		Version:       h.cfg.Version,
		Env:           h.cfg.Env,
		Authenticated: h.isAuthenticated(r),
		TestResult:    testResult,
	}
	if !v.Authenticated {
		return v
	}
	for _, role := range llm.AllRoles {
		rc, ok := h.cfg.Orchestrator.Roles[role]
		if !ok || rc.Model == "" {
			continue
		}
		v.Roles = append(v.Roles, consoleRole{
			Role:     string(role),
			Provider: rc.Provider,
			Model:    rc.Model,
			Endpoint: rc.Endpoint(),
		})
	}
	return v
}

func (h *ConsoleHandler) isAuthenticated(r *http.Request) bool {
	session, err := auth.GetSession(r)
	if err != nil {
		return false
	}
	authed, _ := session.Values[auth.SessionKeyAuthenticated].(bool)
	return authed
}

// Show renders the console page.
func (h *ConsoleHandler) Show(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = consoleTemplate.Execute(w, h.view(r, ""))
}

// Login validates the posted secret against the configured session secret
// and marks the session authenticated.
func (h *ConsoleHandler) Login(w http.ResponseWriter, r *http.Request) {
	secret := r.FormValue("secret")
	want := h.cfg.Auth.SessionSecret
	if want == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(want)) != 1 {
		h.logger.Warn("console login rejected", zap.String("remote_addr", r.RemoteAddr))
		http.Redirect(w, r, "/debug/console", http.StatusSeeOther)
		return
	}

	session, err := auth.GetSession(r)
	if err != nil {
		_ = ErrorResponse(w, http.StatusInternalServerError, "session_error", "failed to open session")
		return
	}
	session.Values[auth.SessionKeyAuthenticated] = true
	if err := auth.SaveSession(r, w, session); err != nil {
		_ = ErrorResponse(w, http.StatusInternalServerError, "session_error", "failed to save session")
		return
	}
	http.Redirect(w, r, "/debug/console", http.StatusSeeOther)
}

// TestLLM probes the selected role's endpoint and re-renders the console
// with the result.
func (h *ConsoleHandler) TestLLM(w http.ResponseWriter, r *http.Request) {
	if !h.isAuthenticated(r) {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "console session required")
		return
	}

	role := llm.Role(r.FormValue("role"))
	rc, ok := h.cfg.Orchestrator.Roles[role]
	if !ok || rc.Model == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}

	result := h.tester.Test(r.Context(), &llm.TestConfig{
		LLMBaseURL: rc.Endpoint(),
		LLMAPIKey:  rc.APIKey,
		LLMModel:   rc.Model,
	})

	summary := fmt.Sprintf("role=%s success=%v message=%s llm=%s (%dms)",
		role, result.Success, result.Message, result.LLMMessage, result.LLMResponseTimeMs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = consoleTemplate.Execute(w, h.view(r, summary))
}
