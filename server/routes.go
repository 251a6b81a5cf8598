package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET /{$}", s.IndexHandler())

	// AUTH
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteValidate, ChainMiddleware(s.ValidateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteValidate, ChainMiddleware(s.ValidateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// SESSION (cookie-gated)
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionReadHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteSession, ChainMiddleware(s.SessionWriteHandler(), s.APIMiddleware(s.RequireSession())...))

	// TENANT DATABASE PROXY (cookie-gated, any method; the CORS middleware
	// answers preflight before the auth gate runs)
	s.RegisterRouteHandler(RouteDatabase, ChainMiddleware(s.DatabaseHandler(), s.APIMiddleware(s.RequireSession())...))

	// CORS preflight for the method-scoped routes above.
	for _, route := range []string{RouteLogin, RouteValidate, RouteSession, RouteLogout} {
		s.RegisterRouteHandler("OPTIONS "+route, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	}
}
