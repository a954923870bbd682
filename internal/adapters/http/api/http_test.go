package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/gauntlet/internal/adapters/http/api"
	"github.com/okian/gauntlet/internal/adapters/repository"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/ledger"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMux() (*http.ServeMux, *service.Engine) {
	e := service.New(repository.NewMemoryStore(),
		service.WithLogger(logger.Nop()),
		service.WithCollector(decision.NewCollector(decision.WithLogger(logger.Nop()))),
		service.WithSeedSource(func() (uint64, error) { return 7, nil }),
		service.WithSweepSchedule(""),
	)
	mux := http.NewServeMux()
	api.NewServer(e, e.Ledger(), e).Register(context.Background(), mux)
	return mux, e
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func createMatch(mux *http.ServeMux) match.Match {
	w := do(mux, http.MethodPost, "/matches", `{"theme":"arena","entrants":[{"id":"alice","name":"Alice"}]}`)
	So(w.Code, ShouldEqual, http.StatusCreated)
	return decodeBody[match.Match](w)
}

func advance(mux *http.ServeMux, id string) service.Result {
	w := do(mux, http.MethodPost, "/matches/"+id+"/advance", "")
	So(w.Code, ShouldEqual, http.StatusOK)
	return decodeBody[service.Result](w)
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, _ := newMux()

		Convey("Then the health endpoint serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint reports the engine", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
			stats := decodeBody[map[string]any](w)
			So(stats["started"], ShouldEqual, false)
		})

		Convey("Then the artifact catalog is listed", func() {
			w := do(mux, http.MethodGet, "/artifacts", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(len(decodeBody[[]model.Artifact](w)), ShouldEqual, len(ledger.DefaultCatalog))
		})

		Convey("Then unknown routes are not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods are refused", func() {
			So(do(mux, http.MethodDelete, "/matches", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestMatches(t *testing.T) {
	Convey("Given a created match", t, func() {
		mux, _ := newMux()
		m := createMatch(mux)
		So(m.Status, ShouldEqual, match.StatusWaiting)

		Convey("Then its summary shows the filled roster", func() {
			w := do(mux, http.MethodGet, "/matches/"+m.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			s := decodeBody[service.Summary](w)
			So(s.Match.ID, ShouldEqual, m.ID)
			So(len(s.Entrants), ShouldEqual, 8)
			So(s.Entrants[0].ID, ShouldEqual, "alice")
		})

		Convey("Then it is listed", func() {
			w := do(mux, http.MethodGet, "/matches", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(len(decodeBody[[]match.Match](w)), ShouldEqual, 1)
		})

		Convey("When it is advanced to intro", func() {
			So(advance(mux, m.ID).Match.Status, ShouldEqual, match.StatusCountdown)
			So(advance(mux, m.ID).Match.Status, ShouldEqual, match.StatusIntro)

			Convey("Then a repeated trigger from intro observes a single round", func() {
				first := do(mux, http.MethodPost, "/matches/"+m.ID+"/advance?from=intro", "")
				So(first.Code, ShouldEqual, http.StatusOK)
				a := decodeBody[service.Result](first)
				So(a.Advanced, ShouldBeTrue)
				So(a.Match.Status, ShouldEqual, match.StatusRound1)

				second := do(mux, http.MethodPost, "/matches/"+m.ID+"/advance?from=intro", "")
				So(second.Code, ShouldEqual, http.StatusOK)
				b := decodeBody[service.Result](second)
				So(b.Conflict, ShouldBeTrue)
				So(b.Match.Status, ShouldEqual, match.StatusRound1)
				So(b.Snapshot, ShouldNotBeNil)
				So(len(b.Snapshot.Events), ShouldEqual, len(a.Snapshot.Events))

				w := do(mux, http.MethodGet, "/matches/"+m.ID+"/snapshots", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decodeBody[[]model.Snapshot](w)), ShouldEqual, 2)
			})

			Convey("Then it can be reset to waiting", func() {
				w := do(mux, http.MethodPost, "/matches/"+m.ID+"/reset", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[match.Match](w).Status, ShouldEqual, match.StatusWaiting)

				again := do(mux, http.MethodPost, "/matches/"+m.ID+"/reset", "")
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(decodeBody[errorBody](again).Code, ShouldEqual, "invalid_transition")
			})
		})

		Convey("When it is advanced to the end", func() {
			for i := 0; i < 32; i++ {
				if advance(mux, m.ID).Match.Status == match.StatusEnded {
					break
				}
			}

			Convey("Then further advances are refused", func() {
				w := do(mux, http.MethodPost, "/matches/"+m.ID+"/advance", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "match_ended")
			})

			Convey("Then the replay is consistent", func() {
				w := do(mux, http.MethodGet, "/matches/"+m.ID+"/replay", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				report := decodeBody[service.ReplayReport](w)
				So(report.Consistent, ShouldBeTrue)
				So(len(report.Stages), ShouldEqual, match.MaxRounds+3)
			})
		})
	})

	Convey("Given bad match requests", t, func() {
		mux, _ := newMux()

		Convey("Then an unknown match is not found", func() {
			w := do(mux, http.MethodGet, "/matches/ghost", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeBody[errorBody](w).Code, ShouldEqual, "not_found")
		})

		Convey("Then duplicate entrants conflict", func() {
			w := do(mux, http.MethodPost, "/matches", `{"entrants":[{"id":"a"},{"id":"a"}]}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("Then out of range stats are rejected", func() {
			w := do(mux, http.MethodPost, "/matches", `{"entrants":[{"id":"a","stats":{"strength":11,"agility":1,"wisdom":1,"charisma":1,"stamina":1,"luck":1}}]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then unknown fields are rejected", func() {
			w := do(mux, http.MethodPost, "/matches", `{"arena":"x"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then an empty body creates a bot match", func() {
			w := do(mux, http.MethodPost, "/matches", "")
			So(w.Code, ShouldEqual, http.StatusCreated)
		})

		Convey("Then an unknown trigger status is rejected", func() {
			m := createMatch(mux)
			w := do(mux, http.MethodPost, "/matches/"+m.ID+"/advance?from=halftime", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestJobs(t *testing.T) {
	Convey("Given a created match and a stopped engine", t, func() {
		mux, _ := newMux()
		m := createMatch(mux)

		Convey("When a job is submitted", func() {
			w := do(mux, http.MethodPost, "/matches/"+m.ID+"/jobs", `{"target":"ended"}`)

			Convey("Then it is accepted and left pending", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				job := decodeBody[model.Job](w)
				So(job.State, ShouldEqual, model.JobPending)

				got := do(mux, http.MethodGet, "/jobs/"+job.ID, "")
				So(got.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.Job](got).Target, ShouldEqual, match.StatusEnded)
			})
		})

		Convey("Then an unknown target is rejected", func() {
			w := do(mux, http.MethodPost, "/matches/"+m.ID+"/jobs", `{"target":"overtime"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then a missing target is rejected", func() {
			w := do(mux, http.MethodPost, "/matches/"+m.ID+"/jobs", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then a target behind the match conflicts", func() {
			advance(mux, m.ID)
			w := do(mux, http.MethodPost, "/matches/"+m.ID+"/jobs", `{"target":"waiting"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decodeBody[errorBody](w).Code, ShouldEqual, "unreachable_target")
		})

		Convey("Then an unknown job is not found", func() {
			So(do(mux, http.MethodGet, "/jobs/ghost", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestWagers(t *testing.T) {
	Convey("Given a match in intro and an open account", t, func() {
		mux, _ := newMux()
		m := createMatch(mux)
		advance(mux, m.ID)
		advance(mux, m.ID)
		w := do(mux, http.MethodPost, "/accounts", `{"id":"carol","balance":1000}`)
		So(w.Code, ShouldEqual, http.StatusOK)
		bets := "/matches/" + m.ID + "/bets"

		Convey("When a bet is placed", func() {
			w := do(mux, http.MethodPost, bets, `{"bettor_id":"carol","entrant_id":"alice","amount":100}`)

			Convey("Then the balance is debited", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				resp := decodeBody[struct {
					Bet     model.Bet `json:"bet"`
					Balance int64     `json:"balance"`
				}](w)
				So(resp.Balance, ShouldEqual, 900)
				So(resp.Bet.EntrantID, ShouldEqual, "alice")

				acc := do(mux, http.MethodGet, "/accounts/carol", "")
				So(acc.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.Account](acc).Balance, ShouldEqual, 900)
			})

			Convey("Then the same bet again conflicts", func() {
				again := do(mux, http.MethodPost, bets, `{"bettor_id":"carol","entrant_id":"alice","amount":100}`)
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(decodeBody[errorBody](again).Code, ShouldEqual, "duplicate_wager")
			})
		})

		Convey("Then rejected bets carry distinct codes", func() {
			cases := []struct {
				body   string
				status int
				code   string
			}{
				{`{"bettor_id":"carol","entrant_id":"alice","amount":5000}`, http.StatusUnprocessableEntity, "insufficient_funds"},
				{`{"bettor_id":"carol","entrant_id":"ghost","amount":10}`, http.StatusUnprocessableEntity, "unknown_entrant"},
				{`{"bettor_id":"carol","entrant_id":"alice","amount":0}`, http.StatusUnprocessableEntity, "invalid_amount"},
				{`{"bettor_id":"nobody","entrant_id":"alice","amount":10}`, http.StatusNotFound, "unknown_account"},
				{`{"entrant_id":"alice","amount":10}`, http.StatusBadRequest, "bad_request"},
			}
			for _, c := range cases {
				w := do(mux, http.MethodPost, bets, c.body)
				So(w.Code, ShouldEqual, c.status)
				So(decodeBody[errorBody](w).Code, ShouldEqual, c.code)
			}
		})

		Convey("Then a gift outside the artifact window is refused", func() {
			art := ledger.DefaultCatalog[0].ID
			w := do(mux, http.MethodPost, "/matches/"+m.ID+"/gifts", `{"bettor_id":"carol","entrant_id":"alice","artifact_id":"`+art+`"}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decodeBody[errorBody](w).Code, ShouldEqual, "window_closed")
		})

		Convey("Then an unknown account is not found", func() {
			So(do(mux, http.MethodGet, "/accounts/nobody", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a negative opening balance is rejected", func() {
			So(do(mux, http.MethodPost, "/accounts", `{"id":"dave","balance":-1}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
