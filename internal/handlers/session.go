package handlers

import (
	"net/http"
	"strings"

	"github.com/Brownie44l1/deepcatcher-api/internal/pipeline"
)

// sessionFromRequest reads the caller's token from the Authorization header.
// Both "Token <t>" and "Bearer <t>" are accepted; tokens are issued by the
// user-service and are not checked here.
func sessionFromRequest(r *http.Request) pipeline.Session {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return pipeline.Session{}
	}

	token := header
	scheme, rest, _ := strings.Cut(header, " ")
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		token = strings.TrimSpace(rest)
	}
	return pipeline.Session{Token: token, Authenticated: token != ""}
}
