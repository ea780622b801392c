package handlers

import "net/http"

// publicRoutes are served without a staff token: health checks, platform
// webhooks, the customer widget and stored attachments.
var publicRoutes = map[string][]string{
	"/ping":                    {http.MethodGet},
	"/health":                  {http.MethodGet, http.MethodHead},
	"/chat/webhook/fb":         {http.MethodGet, http.MethodPost},
	"/chat/webhook/telegram":   {http.MethodPost},
	"/chat/zalo/webhook":       {http.MethodPost},
	"/chat/session":            {http.MethodPost},
	"/chat/session/:id":        {http.MethodGet},
	"/chat/history/:id":        {http.MethodGet},
	"/chat/ws/customer":        {http.MethodGet},
	"/facebook/oauth/callback": {http.MethodGet},
	"/upload/*":                {http.MethodGet},
	"/app/upload/*":            {http.MethodGet},
}

// IsPublicPath reports whether the route pattern skips JWT auth.
func IsPublicPath(method, routePath string) bool {
	for _, m := range publicRoutes[routePath] {
		if m == method {
			return true
		}
	}
	return false
}
