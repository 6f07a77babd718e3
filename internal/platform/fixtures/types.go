package fixtures

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// APIFixtureResponse is the envelope returned by GET /fixtures.
//
// The feed reports request-level problems (quota exhausted, bad key) with a
// 200 status and a non-empty errors member, which is either an object or an
// empty array.
type APIFixtureResponse struct {
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response []APIFixture    `json:"response"`
}

// APIFixture is one element of the response array.
type APIFixture struct {
	Fixture struct {
		ID     int64 `json:"id"`
		Status struct {
			Long    string `json:"long"`
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	Goals APIGoals `json:"goals"`
	Score struct {
		HalfTime  APIGoals `json:"halftime"`
		FullTime  APIGoals `json:"fulltime"`
		ExtraTime APIGoals `json:"extratime"`
		Penalty   APIGoals `json:"penalty"`
	} `json:"score"`
}

// APIGoals is a home/away pair where either side may be null.
type APIGoals struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// complete reports whether both sides are present.
func (g APIGoals) complete() bool {
	return g.Home != nil && g.Away != nil
}

// ToDomainSnapshot converts the API fixture into a domain.FixtureSnapshot.
// Null running goals are read as 0-0 (the feed sends nulls before kick-off);
// a null half-time score stays nil so the evaluator can tell it apart.
func (f APIFixture) ToDomainSnapshot(matchID string, fetchedAt time.Time) domain.FixtureSnapshot {
	snap := domain.FixtureSnapshot{
		MatchID:   matchID,
		Status:    domain.FixtureStatus(f.Fixture.Status.Short),
		FetchedAt: fetchedAt,
	}
	if snap.MatchID == "" {
		snap.MatchID = strconv.FormatInt(f.Fixture.ID, 10)
	}
	if f.Fixture.Status.Elapsed != nil {
		snap.Elapsed = *f.Fixture.Status.Elapsed
	}
	if f.Goals.Home != nil {
		snap.Goals.Home = *f.Goals.Home
	}
	if f.Goals.Away != nil {
		snap.Goals.Away = *f.Goals.Away
	}
	if f.Score.HalfTime.complete() {
		snap.HalfTime = &domain.Score{Home: *f.Score.HalfTime.Home, Away: *f.Score.HalfTime.Away}
	}
	return snap
}

// apiErrors decodes the errors member into a flat map. An empty array, null
// or empty object all mean "no errors".
func apiErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
