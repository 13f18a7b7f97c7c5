// Package restify exposes repository entities as REST routes. Each route is a request
// pipeline: a chain of stages run in order against the gin context, with an executor
// bound to the entity doing the reads and writes.
package restify

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify/apperr"
	"github.com/pkg/errors"
)

type H map[string]any

var (
	BR  = http.StatusBadRequest
	ISR = http.StatusInternalServerError
)

var ErrNotFound = errors.New("not found")

// S creates a generic stage that executes the given function.
// E's default code is http.StatusBadRequest since that is common.
func S(name string, f func(any, *gin.Context, Logger) (any, error)) *Stage {

	return &Stage{
		P: func() string {
			return name
		},
		F: f,
		E: func(err error) *StageError {
			return &StageError{
				Code: BR,
				Obj:  H{"error": err.Error()},
			}
		},
	}
}

// failure maps an error to the response the client sees. apperr errors carry their
// own status and message; anything else is a 500 without detail.
func failure(err error) *StageError {
	return &StageError{
		Code: apperr.CodeOf(err),
		Obj:  H{"error": apperr.MessageOf(err)},
	}
}

func CtxGet(key string) *Stage {
	return &Stage{

		P: func() string {
			return "[\"" + key + "\"] =>"
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {
			val, ok := c.Get(key)
			if !ok {
				return nil, ErrNotFound
			}
			return val, nil
		},

		E: func(err error) *StageError {
			return &StageError{
				Code: ISR,
				Obj:  H{"error": "Key not found: " + key},
			}
		},
	}
}

func CtxSet(key string) *Stage {
	return &Stage{

		P: func() string {
			return "  => [\"" + key + "\"]"
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {
			c.Set(key, in)
			return in, nil
		},
	}
}

// CatchPrefix prefixes the error message produced by the stage's E.
func (s *Stage) CatchPrefix(errorPrefix string) *Stage {

	if errorPrefix == "" || s.E == nil {
		return s
	}

	inner := s.E
	s.E = func(err error) *StageError {
		stageError := inner(err)
		if h, ok := stageError.Obj.(H); ok {
			h["error"] = errorPrefix + ": " + errorText(stageError)
		}
		return stageError
	}

	return s
}
