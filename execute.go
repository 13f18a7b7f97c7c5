package restify

import (
	"time"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code int // HTTP status code
	Obj  any // JSON response data
}

type StageError struct {
	Code int // HTTP status code
	Obj  any // JSON response data
}

func Execute(ch *Chain, c *gin.Context, lgr Logger) (any, *StageError) {

	if lgr != nil {
		lgr.LogMessage("Starting execution chain...")
	}

	s := ch.First
	var d any // Data passed between successive stages
	var e *StageError

	// Execute all stages
	for s != nil {

		if lgr != nil {
			lgr.LogStageStart(s.P(), d)
		}

		t := time.Now()

		d, e = s.Execute(d, c, lgr)

		if lgr != nil {
			lgr.LogStageComplete(e == nil, time.Since(t), s.P(), d)
			if e != nil {
				lgr.LogStageError(e)
			}
		}

		if e != nil {
			return nil, e
		}

		s = s.n
	}

	return d, nil
}

// Execute executes the stage by calling the F function followed by the E function if there's an error.
// A stage without E answers 500 with the error text hidden.
func (s *Stage) Execute(in any, c *gin.Context, lgr Logger) (any, *StageError) {

	out, err := s.F(in, c, lgr)
	if err != nil {
		if s.E == nil {
			return nil, failure(err)
		}
		return nil, s.E(err)
	}

	return out, nil
}

func MakeGinHandlerFunc(ch *Chain, lgr Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, e := Execute(ch, c, lgr)
		if e != nil {
			c.JSON(e.Code, e.Obj)
			return
		}

		res, ok := o.(*Response)
		if !ok {
			c.JSON(ISR, H{"error": "pipeline did not produce a response"})
			return
		}
		c.JSON(res.Code, res.Obj)
	}
}
