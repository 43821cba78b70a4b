// Package resolver turns a free-text query into a list of playable audio
// streams. It asks the archive's search index for licensed audio items,
// enriches each candidate with its file listing, and picks one playable
// file per item.
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/archivestream/pkg/apiutil"
	"github.com/zachfi/archivestream/pkg/archive"
)

var module = "resolver"

type Resolver struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
	client *archive.Client

	searches          prometheus.Counter
	searchErrors      prometheus.Counter
	candidatesFetched prometheus.Counter
	candidatesSkipped prometheus.Counter
	playableResults   prometheus.Counter
}

// New creates and returns a new Resolver.
func New(cfg Config, logger slog.Logger, reg prometheus.Registerer) (*Resolver, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	r := &Resolver{
		cfg:    &cfg,
		logger: logger.With("module", module),
		client: archive.New(cfg.ArchiveURL, cfg.Timeout, cfg.UserAgent),
	}

	factory := promauto.With(reg)
	r.searches = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "resolver_searches_total",
		Help:      "Search requests handled.",
	})
	r.searchErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "resolver_search_errors_total",
		Help:      "Search requests that failed against the upstream index.",
	})
	r.candidatesFetched = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "resolver_candidates_fetched_total",
		Help:      "Candidate items whose metadata was fetched.",
	})
	r.candidatesSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "resolver_candidates_skipped_total",
		Help:      "Candidate items skipped for having no playable file or a failed metadata fetch.",
	})
	r.playableResults = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "archivestream",
		Name:      "resolver_playable_results_total",
		Help:      "Playable results returned to clients.",
	})

	r.Service = services.NewIdleService(nil, nil)

	return r, nil
}

// Result is one playable entry in a search response. StreamURL is relative
// to this service and resolves through the stream proxy, never directly to
// the archive.
type Result struct {
	Title      string `json:"title"`
	Creator    string `json:"creator"`
	Identifier string `json:"identifier"`
	StreamURL  string `json:"streamUrl"`
}

type searchResults struct {
	Results []Result `json:"results"`
}

// Handler returns the HTTP handler for the search endpoint.
func (r *Resolver) Handler() http.Handler {
	return http.HandlerFunc(r.handleSearch)
}

func (r *Resolver) handleSearch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		apiutil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	q := strings.TrimSpace(req.URL.Query().Get("q"))
	if q == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "Missing query parameter: q", "")
		return
	}

	limit := parseLimit(req.URL.Query().Get("limit"))

	ctx, cancel := context.WithTimeout(req.Context(), r.cfg.Timeout)
	defer cancel()

	r.searches.Inc()

	docs, err := r.client.Search(ctx, q, overFetch(limit))
	if err != nil {
		r.searchErrors.Inc()
		r.logger.Error("search index call failed", "query", q, "err", err)
		apiutil.WriteError(w, http.StatusBadGateway, "Upstream search failed", err.Error())
		return
	}

	results := r.resolve(ctx, docs, limit)

	apiutil.WriteJSON(w, http.StatusOK, searchResults{Results: results})
}

// resolve enriches candidates with their file listings until limit playable
// results exist. Metadata fetches run concurrently; a shared counter gates
// the work and cancellation abandons the remainder once the limit is
// satisfied. Output order follows the candidate (popularity) order, not
// completion order.
func (r *Resolver) resolve(ctx context.Context, docs []archive.Doc, limit int) []Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		pos    int
		result Result
	}

	var (
		mu    sync.Mutex
		found []indexed
		count int32
		wg    sync.WaitGroup
	)

	sem := make(chan struct{}, r.cfg.Concurrency)

loop:
	for pos, doc := range docs {
		if doc.Identifier == "" {
			continue
		}

		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		if atomic.LoadInt32(&count) >= int32(limit) {
			<-sem
			break
		}

		wg.Add(1)
		go func(pos int, doc archive.Doc) {
			defer wg.Done()
			defer func() { <-sem }()

			res, ok := r.enrich(ctx, doc)
			if !ok {
				return
			}

			mu.Lock()
			found = append(found, indexed{pos: pos, result: res})
			mu.Unlock()

			if atomic.AddInt32(&count, 1) >= int32(limit) {
				cancel()
			}
		}(pos, doc)
	}

	wg.Wait()

	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	if len(found) > limit {
		found = found[:limit]
	}

	results := make([]Result, 0, len(found))
	for _, f := range found {
		results = append(results, f.result)
	}
	return results
}

// enrich fetches one candidate's metadata and selects its playable file.
// Any failure skips the candidate; a single bad item must not abort the
// whole search.
func (r *Resolver) enrich(ctx context.Context, doc archive.Doc) (Result, bool) {
	r.candidatesFetched.Inc()

	item, err := r.client.Metadata(ctx, doc.Identifier)
	if err != nil {
		r.logger.Debug("skipping candidate", "identifier", doc.Identifier, "err", err)
		r.candidatesSkipped.Inc()
		return Result{}, false
	}

	file, ok := archive.PickPlayable(item.Files)
	if !ok {
		r.candidatesSkipped.Inc()
		return Result{}, false
	}

	title := doc.Title
	if title == "" {
		title = item.Metadata.Title
	}
	creator := doc.Creator.Join()
	if creator == "" {
		creator = item.Metadata.Creator.Join()
	}

	download := r.client.DownloadURL(doc.Identifier, file.Name)

	r.playableResults.Inc()

	return Result{
		Title:      title,
		Creator:    creator,
		Identifier: doc.Identifier,
		StreamURL:  "/api/stream?url=" + url.QueryEscape(download),
	}, true
}

// parseLimit clamps the requested result count into [1, maxLimit]. Absent,
// non-numeric, zero and negative values all fall back to the default;
// out-of-range values are clamped silently.
func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// overFetch returns how many candidates to request from the search index.
// Not every candidate has a playable file, so we speculatively fetch twice
// the limit, capped at maxRows.
func overFetch(limit int) int {
	rows := limit * 2
	if rows > maxRows {
		rows = maxRows
	}
	return rows
}
