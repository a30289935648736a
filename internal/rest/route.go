package rest

import (
	"net/http"
	"regexp"
	"strings"
)

var (
	snowflakeSegment = regexp.MustCompile(`/([a-z-]+)/([0-9]{17,19})\b`)
	reactionSegment  = regexp.MustCompile(`/reactions/[^/]+`)
	webhookToken     = regexp.MustCompile(`^/webhooks/([0-9]+)/[A-Za-z0-9_-]{64,}`)
	callbackToken    = regexp.MustCompile(`/[A-Za-z0-9_-]{64,}/callback$`)
)

// majorParameters are the resource types whose ID is part of the bucket
// identity on the remote side, so the literal value is kept.
var majorParameters = map[string]bool{
	"channels":     true,
	"guilds":       true,
	"webhooks":     true,
	"interactions": true,
}

// Classify maps a concrete method and path to the bucket key shared by every
// request that draws from the same remote rate limit. Query strings do not
// participate in bucketing. Classify(Classify(p, m), m) == Classify(p, m).
func Classify(path, method string) string {
	route, _, _ := strings.Cut(path, "?")

	if strings.HasPrefix(route, http.MethodDelete+"/") {
		return route
	}

	route = snowflakeSegment.ReplaceAllStringFunc(route, func(match string) string {
		parts := snowflakeSegment.FindStringSubmatch(match)
		if majorParameters[parts[1]] {
			return match
		}
		return "/" + parts[1] + "/:id"
	})
	route = reactionSegment.ReplaceAllString(route, "/reactions/:id")
	route = webhookToken.ReplaceAllString(route, "/webhooks/$1/:token")
	route = callbackToken.ReplaceAllString(route, "/:token/callback")

	// Message deletion is limited independently of the other message verbs.
	if method == http.MethodDelete && strings.HasSuffix(route, "/messages/:id") {
		route = method + route
	}

	return route
}

func isReactionRoute(route string) bool {
	return strings.Contains(route, "/reactions/:id")
}
