package restify

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify/executor"
)

// Routes builds the entity routes served by proto:
//
//	GET    /      read many
//	GET    /:id   read one, by id or code
//	POST   /      create
//	POST   /:id   update (also PUT and PATCH)
//	DELETE /:id   delete
//
// Every route is built, including those for operations the variant does not allow;
// those answer 405 from the executor.
func Routes(proto *executor.Executor, lgr Logger) []*Route {

	route := func(method, path string, pipe *Chain) *Route {
		return &Route{HttpMethod: method, RelativePath: path, Pipe: pipe, Logger: lgr}
	}

	return []*Route{
		route(http.MethodGet, "/", listPipe(proto)),
		route(http.MethodGet, "/:id", readOnePipe(proto)),
		route(http.MethodPost, "/", savePipe(proto)),
		route(http.MethodPost, "/:id", savePipe(proto)),
		route(http.MethodPut, "/:id", savePipe(proto)),
		route(http.MethodPatch, "/:id", savePipe(proto)),
		route(http.MethodDelete, "/:id", removePipe(proto)),
	}
}

// Mount registers the routes of proto on router and returns them.
func Mount(router gin.IRoutes, proto *executor.Executor, lgr Logger) []*Route {
	routes := Routes(proto, lgr)
	for _, r := range routes {
		AddRoute(router, r)
	}
	return routes
}

// wantsTotal is true when the executor counts by default or the request asks with
// ?count=Y.
func wantsTotal(proto *executor.Executor) func(any, *gin.Context) bool {
	return func(_ any, c *gin.Context) bool {
		if proto.Options().CountTotal {
			return true
		}
		switch strings.ToLower(c.Query("count")) {
		case "1", "y", "yes", "true":
			return true
		}
		return false
	}
}

func listPipe(proto *executor.Executor) *Chain {

	rows := func() *Chain {
		return First(ReadMany()).Then(CtxSet(CtxRows))
	}

	// The rows are picked back up from the context once both branches are done.
	withTotal := InSequence(
		InParallel(
			rows(),
			MakeChain(CountTotal().CatchPrefix("count"))),
		MakeChain(CtxGet(CtxRows)),
	)

	return InSequence(
		First(
			NewExecutor(proto)).Then(
			PrepareQuery()),
		MakeChain(If(wantsTotal(proto), withTotal, rows())),
		MakeChain(Success()),
	)
}

func readOnePipe(proto *executor.Executor) *Chain {
	return First(
		NewExecutor(proto)).Then(
		PrepareQuery()).Then(
		URLParam("id")).Then(
		ReadOne()).Then(
		Success())
}

func savePipe(proto *executor.Executor) *Chain {
	return First(
		NewExecutor(proto)).Then(
		RawBody()).Then(
		PrepareQuery()).Then(
		URLParam("id")).Then(
		Save()).Then(
		Success())
}

func removePipe(proto *executor.Executor) *Chain {
	return First(
		NewExecutor(proto)).Then(
		PrepareQuery()).Then(
		URLParam("id")).Then(
		Remove()).Then(
		Success())
}
