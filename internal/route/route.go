// Package route orders store visits with a nearest-neighbor heuristic.
package route

import (
	"fmt"

	"github.com/noah-isme/shopping-optimizer/internal/geo"
)

// StopInput is a candidate stop.
type StopInput struct {
	ID       string    `json:"id"`
	Location geo.Point `json:"location"`
}

// Stop is a visited stop; Order is 0-based and dense.
type Stop struct {
	StoreID  string    `json:"storeId"`
	Location geo.Point `json:"location"`
	Order    int       `json:"order"`
}

// Leg is one walking segment of the route.
type Leg struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	DistanceKm float64 `json:"distanceKm"`
	Minutes    int     `json:"minutes"`
}

// Plan is the ordered visit plan. TotalTimeMin is the sum of per-leg minutes.
type Plan struct {
	Stops           []Stop  `json:"stops"`
	Legs            []Leg   `json:"legs"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
	TotalTimeMin    int     `json:"totalTimeMin"`
}

// OriginID names the starting point in Plan.Legs.
const OriginID = "origin"

// Optimizer computes open-path visiting orders.
type Optimizer struct {
	// SpeedKmH is the walking speed; non-positive means geo.DefaultWalkingSpeedKmH.
	SpeedKmH float64
}

// Route visits every stop once starting at origin, always walking to the
// nearest unvisited stop next. Ties go to the lower input index. The result is
// a greedy approximation, not an optimal tour.
func (o Optimizer) Route(origin geo.Point, stops []StopInput) (Plan, error) {
	if err := origin.Validate(); err != nil {
		return Plan{}, fmt.Errorf("origin: %w", err)
	}
	for i, s := range stops {
		if err := s.Location.Validate(); err != nil {
			return Plan{}, fmt.Errorf("stop %d (%s): %w", i, s.ID, err)
		}
	}
	plan := Plan{Stops: make([]Stop, 0, len(stops)), Legs: make([]Leg, 0, len(stops))}
	if len(stops) == 0 {
		return plan, nil
	}

	visited := make([]bool, len(stops))
	current, currentID := origin, OriginID
	for order := 0; order < len(stops); order++ {
		best := -1
		bestKm := 0.0
		for i, s := range stops {
			if visited[i] {
				continue
			}
			km := geo.Haversine(current, s.Location)
			if best < 0 || km < bestKm {
				best, bestKm = i, km
			}
		}
		visited[best] = true
		next := stops[best]
		minutes := geo.WalkingMinutes(bestKm, o.SpeedKmH)
		plan.Stops = append(plan.Stops, Stop{StoreID: next.ID, Location: next.Location, Order: order})
		plan.Legs = append(plan.Legs, Leg{From: currentID, To: next.ID, DistanceKm: bestKm, Minutes: minutes})
		plan.TotalDistanceKm += bestKm
		plan.TotalTimeMin += minutes
		current, currentID = next.Location, next.ID
	}
	return plan, nil
}
