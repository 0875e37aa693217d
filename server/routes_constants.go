package server

// Route path constants
const (
	RouteAuthLogin         = "/auth/login"
	RouteAuthRedirect      = "/auth/redirect"
	RouteAuthRefresh       = "/auth/refresh"
	RouteAuthLogout        = "/auth/logout"
	RouteAuthMe            = "/auth/me"
	RouteAuthMeGuilds      = "/auth/me/guilds"
	RouteAuthMeConnections = "/auth/me/connections"
	RouteHealth            = "/healthz"
)
