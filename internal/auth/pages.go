package auth

import (
	_ "embed"
	"html/template"
	"net/http"
	"strings"

	"dvbox/pkg/logging"
)

//go:embed templates/validating.html
var validatingHTML string

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var errorPageTemplate = template.Must(template.New("error").Parse(errorHTML))

// escapeMessage neutralizes every character that could break out of
// the error page's markup. The identity provider controls
// error_description, so it is treated as hostile input. The forward
// slash is included to keep "</script" style payloads inert even
// inside exotic contexts.
func escapeMessage(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
		"/", "&#47;",
	)
	return replacer.Replace(s)
}

func writePageHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

func writeValidatingPage(w http.ResponseWriter) {
	writePageHeaders(w)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(validatingHTML)); err != nil {
		logging.Debug("Auth", "Failed to write validating page: %v", err)
	}
}

func writeSuccessPage(w http.ResponseWriter) {
	writePageHeaders(w)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(successHTML)); err != nil {
		logging.Debug("Auth", "Failed to write success page: %v", err)
	}
}

func writeErrorPage(w http.ResponseWriter, message string) {
	writePageHeaders(w)
	w.WriteHeader(http.StatusOK)
	// Pre-escaped and marked safe so the template does not re-encode
	// the entities produced by escapeMessage.
	data := struct{ Message template.HTML }{Message: template.HTML(escapeMessage(message))}
	if err := errorPageTemplate.Execute(w, data); err != nil {
		logging.Debug("Auth", "Failed to write error page: %v", err)
	}
}
