package main

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify/internal/app"
	"github.com/jeremywhuff/restify/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes the configuration mounts",
	RunE: func(cmd *cobra.Command, args []string) error {

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		gin.SetMode(gin.ReleaseMode)

		ctx := context.Background()
		a, err := app.New(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return pterm.DefaultTable.
			WithHasHeader().
			WithWriter(cmd.OutOrStdout()).
			WithData(routeTable(a.Routes)).
			Render()
	},
}

func routeTable(routes []app.Mounted) pterm.TableData {

	data := pterm.TableData{{"Method", "Path", "Entity", "Operations"}}
	for _, r := range routes {
		ops := make([]string, len(r.Operations))
		for i, op := range r.Operations {
			ops[i] = string(op)
		}
		data = append(data, []string{r.Method, r.Path, r.Entity, strings.Join(ops, ",")})
	}
	return data
}
