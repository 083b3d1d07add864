// Package api serves the indexed entities over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/streamswap/stellar-indexer/flow"
	"github.com/streamswap/stellar-indexer/metrics"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// CursorFunc reports the last committed event, if any.
type CursorFunc func(ctx context.Context) (*models.Cursor, bool, error)

type server struct {
	store  store.Store
	cursor CursorFunc
	log    zerolog.Logger
	now    func() time.Time
}

func NewServer(s store.Store, cursor CursorFunc, log zerolog.Logger) http.Handler {
	srv := &server{
		store:  s,
		cursor: cursor,
		log:    log,
		now:    time.Now,
	}
	return srv.handler()
}

func (s *server) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/pools", func(r chi.Router) {
		r.Get("/", s.handlePools)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handlePool)
			r.Get("/tokens", s.handlePoolTokens)
			r.Get("/swaps", s.handlePoolSwaps)
			r.Get("/continuous-swaps", s.handlePoolContinuousSwaps)
			r.Get("/day-data", s.handlePoolDayData)
			r.Get("/hour-data", s.handlePoolHourData)
		})
	})

	r.Route("/tokens/{id}", func(r chi.Router) {
		r.Get("/", s.handleToken)
		r.Get("/day-data", s.handleTokenDayData)
	})

	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/continuous-swaps", s.handleUserContinuousSwaps)
		r.Get("/swaps", s.handleUserSwaps)
		r.Get("/tokens", s.handleUserTokens)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true, "time": s.now().UTC()}
	if s.cursor != nil {
		cursor, ok, err := s.cursor(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		if ok {
			body["ledger"] = cursor.Ledger
			body["event"] = cursor.TxHash + "-" + strconv.FormatUint(uint64(cursor.LogIndex), 10)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handlePools(w http.ResponseWriter, r *http.Request) {
	q, ok := listQuery(w, r, "createdAtTimestamp")
	if !ok {
		return
	}
	list[models.Pool](s, w, r, q)
}

func (s *server) handlePool(w http.ResponseWriter, r *http.Request) {
	get[models.Pool](s, w, r, chi.URLParam(r, "id"))
}

func (s *server) handlePoolTokens(w http.ResponseWriter, r *http.Request) {
	q, ok := listQuery(w, r, "token")
	if !ok {
		return
	}
	q.Where = map[string]string{"pool": chi.URLParam(r, "id")}
	list[models.PooledToken](s, w, r, q)
}

func (s *server) handlePoolSwaps(w http.ResponseWriter, r *http.Request) {
	s.swaps(w, r, "pool")
}

func (s *server) handleUserSwaps(w http.ResponseWriter, r *http.Request) {
	s.swaps(w, r, "user")
}

func (s *server) swaps(w http.ResponseWriter, r *http.Request, by string) {
	q, ok := listQuery(w, r, "timestamp")
	if !ok {
		return
	}
	q.Where = map[string]string{by: chi.URLParam(r, "id")}
	if q.Range, ok = rangeParam(w, r, "timestamp"); !ok {
		return
	}
	list[models.InstantSwap](s, w, r, q)
}

func (s *server) handlePoolContinuousSwaps(w http.ResponseWriter, r *http.Request) {
	s.continuousSwaps(w, r, "pool")
}

func (s *server) handleUserContinuousSwaps(w http.ResponseWriter, r *http.Request) {
	s.continuousSwaps(w, r, "user")
}

func (s *server) continuousSwaps(w http.ResponseWriter, r *http.Request, by string) {
	q, ok := listQuery(w, r, "timestamp")
	if !ok {
		return
	}
	q.Where = map[string]string{by: chi.URLParam(r, "id")}
	switch active := r.URL.Query().Get("active"); active {
	case "":
	case "true", "false":
		q.Where["active"] = active
	default:
		writeError(w, http.StatusBadRequest, "active must be true or false")
		return
	}
	list[models.ContinuousSwap](s, w, r, q)
}

func (s *server) handlePoolDayData(w http.ResponseWriter, r *http.Request) {
	if q, ok := s.bucketQuery(w, r, "pool"); ok {
		list[models.PoolDayData](s, w, r, q)
	}
}

func (s *server) handlePoolHourData(w http.ResponseWriter, r *http.Request) {
	if q, ok := s.bucketQuery(w, r, "pool"); ok {
		list[models.PoolHourData](s, w, r, q)
	}
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	get[models.Token](s, w, r, chi.URLParam(r, "id"))
}

func (s *server) handleTokenDayData(w http.ResponseWriter, r *http.Request) {
	if q, ok := s.bucketQuery(w, r, "token"); ok {
		list[models.TokenDayData](s, w, r, q)
	}
}

// bucketQuery lists the buckets of one parent whose start falls in [from, to].
func (s *server) bucketQuery(w http.ResponseWriter, r *http.Request, parent string) (store.Query, bool) {
	q, ok := listQuery(w, r, "date")
	if !ok {
		return q, false
	}
	q.Where = map[string]string{parent: chi.URLParam(r, "id")}
	q.Range, ok = rangeParam(w, r, "date")
	return q, ok
}

type userTokenView struct {
	*models.UserToken
	At          int64           `json:"at"`
	LiveBalance decimal.Decimal `json:"liveBalance"`
}

// handleUserTokens adds the balance projected to ?at= (default now) from the
// stored balance and net flow.
func (s *server) handleUserTokens(w http.ResponseWriter, r *http.Request) {
	q, ok := listQuery(w, r, "token")
	if !ok {
		return
	}
	q.Where = map[string]string{"user": chi.URLParam(r, "id")}

	at := s.now().Unix()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be a unix timestamp")
			return
		}
		at = parsed
	}

	tokens, err := store.List[models.UserToken](r.Context(), s.store, q)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]userTokenView, len(tokens))
	for i, ut := range tokens {
		views[i] = userTokenView{UserToken: ut, At: at, LiveBalance: flow.BalanceAt(ut, at)}
	}
	writeJSON(w, http.StatusOK, views)
}

func get[T any, PT interface {
	*T
	store.Entity
}](s *server, w http.ResponseWriter, r *http.Request, id string) {
	e, err := store.MustLoad[T, PT](r.Context(), s.store, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func list[T any, PT interface {
	*T
	store.Entity
}](s *server, w http.ResponseWriter, r *http.Request, q store.Query) {
	items, err := store.List[T, PT](r.Context(), s.store, q)
	if err != nil {
		s.fail(w, err)
		return
	}
	if items == nil {
		items = []PT{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrUnavailable):
		s.log.Warn().Err(err).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func listQuery(w http.ResponseWriter, r *http.Request, orderBy string) (store.Query, bool) {
	values := r.URL.Query()
	q := store.Query{OrderBy: orderBy, Limit: defaultLimit}

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return q, false
		}
		q.Limit = min(n, maxLimit)
	}
	if v := values.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
			return q, false
		}
		q.Skip = n
	}
	switch values.Get("order") {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return q, false
	}
	return q, true
}

func rangeParam(w http.ResponseWriter, r *http.Request, field string) (*store.Range, bool) {
	values := r.URL.Query()
	rng := &store.Range{Field: field}
	for _, bound := range []struct {
		name string
		dst  **int64
	}{{"from", &rng.From}, {"to", &rng.To}} {
		v := values.Get(bound.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, bound.name+" must be a unix timestamp")
			return nil, false
		}
		*bound.dst = &n
	}
	if rng.From == nil && rng.To == nil {
		return nil, true
	}
	return rng, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
