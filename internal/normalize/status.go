package normalize

import (
	"strings"

	"github.com/livinlefevreloca/p2g/internal/model"
)

// StatusPoints builds the current-status snapshot from live listings, all
// stamped at now. Checks report status and last response time; transaction
// monitors report status only.
//
//	checks.<name>.status            1 when "up"
//	checks.<name>.lastresponsetime
//	tms.<name>.status               1 when "successful"
func StatusPoints(entities []model.Entity, now int64) []model.MetricPoint {
	points := make([]model.MetricPoint, 0, 2*len(entities))
	for _, e := range entities {
		base := e.Kind.PathPrefix() + "." + Slug(e.Name)
		switch e.Kind {
		case model.KindCheck:
			points = append(points,
				model.MetricPoint{Path: base + ".status", Value: upValue(e.Status), Timestamp: now},
				model.MetricPoint{Path: base + ".lastresponsetime", Value: float64(e.LastResponseTime), Timestamp: now},
			)
		case model.KindTransaction:
			v := 0.0
			if strings.EqualFold(e.Status, "successful") {
				v = 1
			}
			points = append(points, model.MetricPoint{Path: base + ".status", Value: v, Timestamp: now})
		}
	}
	return points
}
