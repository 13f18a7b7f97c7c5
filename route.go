package restify

import "github.com/gin-gonic/gin"

type Route struct {
	HttpMethod   string
	RelativePath string
	Pipe         *Chain
	Logger       Logger
}

func AddRoute(router gin.IRoutes, route *Route) {
	router.Handle(route.HttpMethod, route.RelativePath, route.Handler())
}

func (r *Route) Handler() gin.HandlerFunc {
	return MakeGinHandlerFunc(r.Pipe, r.Logger)
}
