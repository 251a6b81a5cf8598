package server

// Gateway routes. Trailing slashes match the public API of the original
// service and are load-bearing: clients request them verbatim.
const (
	RouteLogin    = "/login/"
	RouteValidate = "/validate/"
	RouteSession  = "/session/"
	RouteLogout   = "/logout/"
	RouteDatabase = "/db/"
)
