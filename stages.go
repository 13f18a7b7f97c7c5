package restify

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify/executor"
	"github.com/jeremywhuff/restify/store"
	"github.com/pkg/errors"
)

// Context keys set by the executor stages.
const (
	CtxExecutor = "restify.executor"
	CtxRows     = "restify.rows"
	CtxTotal    = "restify.total"
)

// HeaderTotalCount carries the row count of list routes that ask for it.
const HeaderTotalCount = "X-Total-Count"

var errNoExecutor = errors.New("no executor in context")

func executorFrom(c *gin.Context) (*executor.Executor, error) {
	e, ok := c.Get(CtxExecutor)
	if !ok {
		return nil, errNoExecutor
	}
	ex, ok := e.(*executor.Executor)
	if !ok {
		return nil, errNoExecutor
	}
	return ex, nil
}

// NewExecutor puts a per-request copy of proto into the context.
func NewExecutor(proto *executor.Executor) *Stage {
	return &Stage{

		P: func() string {
			return FuncStr("new_executor", proto.Variant().Entity) + CtxOutStr(CtxExecutor)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {
			e := proto.Factory()
			c.Set(CtxExecutor, e)
			return e, nil
		},

		E: failure,
	}
}

// PrepareQuery compiles the query string and the body in into the executor's query.
func PrepareQuery() *Stage {
	return &Stage{

		P: func() string {
			return StageName(true, "prepare_query", []string{CtxExecutor}, nil, true)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {

			e, err := executorFrom(c)
			if err != nil {
				return nil, err
			}

			body, _ := in.([]byte)
			if err := e.PrepareQuery(c.Request.URL.Query(), body); err != nil {
				return nil, err
			}
			if dropped := e.Dropped(); len(dropped) > 0 && lgr != nil {
				lgr.LogMessage("Ignoring unknown fields: " + strings.Join(dropped, ", "))
			}
			return e, nil
		},

		E: failure,
	}
}

// ReadMany outputs the rows of the prepared query.
func ReadMany() *Stage {
	return &Stage{

		P: func() string {
			return StageName(false, "read_many", []string{CtxExecutor}, nil, true)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {

			e, err := executorFrom(c)
			if err != nil {
				return nil, err
			}
			return e.ReadMany(c.Request.Context())
		},

		E: failure,
	}
}

// CountTotal counts the rows matching the prepared filter and reports them in the
// X-Total-Count header.
func CountTotal() *Stage {
	return &Stage{

		P: func() string {
			return StageName(false, "count_total", []string{CtxExecutor}, []string{CtxTotal}, true)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {

			e, err := executorFrom(c)
			if err != nil {
				return nil, err
			}
			n, err := e.Count(c.Request.Context())
			if err != nil {
				return nil, err
			}
			c.Set(CtxTotal, n)
			c.Header(HeaderTotalCount, strconv.FormatInt(n, 10))
			return n, nil
		},

		E: failure,
	}
}

// ReadOne outputs the row whose id or code is in.
func ReadOne() *Stage {
	return &Stage{

		P: func() string {
			return StageName(true, "read_one", []string{CtxExecutor}, nil, true)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {

			e, err := executorFrom(c)
			if err != nil {
				return nil, err
			}
			id, _ := in.(string)
			return e.ReadOne(c.Request.Context(), id)
		},

		E: failure,
	}
}

// Save writes the request body to the row whose id is in, or creates a row when in is
// empty.
func Save() *Stage {
	return &Stage{

		P: func() string {
			return StageName(true, "save", []string{CtxExecutor}, nil, true)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {

			e, err := executorFrom(c)
			if err != nil {
				return nil, err
			}
			id, _ := in.(string)
			return e.Update(c.Request.Context(), id, e.Body())
		},

		E: failure,
	}
}

// Remove deletes the row whose id is in and outputs it.
func Remove() *Stage {
	return &Stage{

		P: func() string {
			return StageName(true, "remove", []string{CtxExecutor}, nil, true)
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {

			e, err := executorFrom(c)
			if err != nil {
				return nil, err
			}
			id, _ := in.(string)
			return e.Delete(c.Request.Context(), id)
		},

		E: failure,
	}
}

// Success wraps in into the {"result": "ok", "message": in} envelope.
func Success() *Stage {
	return &Stage{

		P: func() string {
			return "  => success()"
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {
			if rows, ok := in.([]*store.Row); ok && rows == nil {
				in = []*store.Row{}
			}
			return &Response{
				Code: http.StatusOK,
				Obj:  H{"result": "ok", "message": in},
			}, nil
		},
	}
}
