package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/0xDevansh/aries-week/core"
)

const orderingParam = "ordering"

// bindOrdering parses `?ordering=name,-created_at` (a leading "-" means descending).
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	var orderings []core.DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" {
			continue
		}
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}
