package restify

import (
	"github.com/gin-gonic/gin"
)

// RawBody outputs the request body bytes. Requests without a body output nil.
func RawBody() *Stage {
	return &Stage{

		P: func() string {
			return "Req.Body =>"
		},

		F: func(in any, c *gin.Context, lgr Logger) (any, error) {
			if c.Request.Body == nil {
				return []byte(nil), nil
			}
			return c.GetRawData()
		},

		E: func(err error) *StageError {
			return &StageError{
				Code: BR,
				Obj:  H{"error": "Invalid request: " + err.Error()},
			}
		},
	}
}

// URLParam outputs the path parameter key, "" when the route has none.
func URLParam(key string) *Stage {
	return S("Req.URL(\""+key+"\") =>", func(in any, c *gin.Context, lgr Logger) (any, error) {
		return c.Param(key), nil
	})
}
