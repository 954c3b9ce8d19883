package auth

import (
	"context"
	"os"
)

// envVars maps environment variable names to cookie names.
var envVars = map[string]string{
	"GOODREADS_SESSION_ID2": "_session_id2",
	"GOODREADS_AT_MAIN":     "at-main",
	"GOODREADS_UBID_MAIN":   "ubid-main",
	"GOODREADS_CCSID":       "ccsid",
	"GOODREADS_LOCALE":      "locale",
}

// EnvSource reads cookies from environment variables.
type EnvSource struct{}

// Cookies returns Goodreads session cookies from environment variables.
func (EnvSource) Cookies(_ context.Context) (map[string]string, error) {
	cookies := make(map[string]string)
	for envVar, cookieName := range envVars {
		if value := os.Getenv(envVar); value != "" {
			cookies[cookieName] = value
		}
	}

	if len(cookies) == 0 {
		return nil, nil //nolint:nilnil // no env vars set is not an error
	}
	return cookies, nil
}

// EnvVarNames returns the environment variable names EnvSource reads.
// This is useful for generating help messages.
func EnvVarNames() []string {
	vars := make([]string, 0, len(envVars))
	for envVar := range envVars {
		vars = append(vars, envVar)
	}
	return vars
}
