package httpclient

import "strings"

// JoinURL joins a base URL and a relative path with exactly one slash.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// APIURL builds an absolute Web API URL for a relative operation path,
// e.g. APIURL("https://org.crm.dynamics.com", "accounts(123)").
func APIURL(base, relative string) string {
	return JoinURL(base, "api/data/"+APIVersion+"/"+strings.TrimLeft(relative, "/"))
}
