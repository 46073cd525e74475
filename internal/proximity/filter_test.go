package proximity

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
)

func at(id string, lat, lon float64, active bool) models.User {
	return models.User{
		ID:       id,
		IsActive: active,
		Location: &models.Location{Latitude: lat, Longitude: lon, LastUpdated: time.Unix(0, 0)},
	}
}

func TestFilter(t *testing.T) {
	c := qt.New(t)
	origin := geo.Point{Lat: 40.4168, Lon: -3.7038}

	users := []models.User{
		at("viewer", 40.4168, -3.7038, true),
		at("far", 40.4300, -3.7038, true),
		at("mid", 40.4218, -3.7038, true),
		at("close", 40.4172, -3.7038, true),
		at("asleep", 40.4169, -3.7038, false),
		{ID: "nowhere", IsActive: true},
		at("close-b", 40.4172, -3.7038, true),
	}

	got := Filter("viewer", origin, users, 1000, 100)
	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.User.ID
	}
	c.Assert(ids, qt.DeepEquals, []string{"close", "close-b", "mid"})
	c.Assert(got[0].InView, qt.IsTrue)
	c.Assert(got[2].InView, qt.IsFalse)
	c.Assert(got[2].DistanceMeters > 500 && got[2].DistanceMeters < 600, qt.IsTrue)
}

func TestFilter_RadiusIsInclusive(t *testing.T) {
	c := qt.New(t)
	origin := geo.Point{Lat: 0, Lon: 0}
	u := at("edge", 0.001, 0, true)
	d := geo.Distance(origin, geo.Point{Lat: 0.001, Lon: 0})

	c.Assert(Filter("viewer", origin, []models.User{u}, d, d), qt.HasLen, 1)
	c.Assert(Filter("viewer", origin, []models.User{u}, d-0.01, 0), qt.HasLen, 0)
}

func TestFilter_EmptyIsNotNil(t *testing.T) {
	c := qt.New(t)
	got := Filter("viewer", geo.Point{}, nil, 1000, 100)
	c.Assert(got, qt.IsNotNil)
	c.Assert(got, qt.HasLen, 0)
}
