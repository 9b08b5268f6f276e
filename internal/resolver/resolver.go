// Package resolver implements a MusicBrainz metadata resolution algorithm:
// a priority-ordered list of candidate searches, a "Nightcore" short-circuit,
// and rate-limited, cached HTTP lookups. Grounded on
// original_source/myousync/src/brainz.rs.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/splamy/myousync/internal/ratelimit"
	"github.com/splamy/myousync/internal/store"
)

const (
	baseURL               = "https://musicbrainz.org/ws/2/recording/"
	userAgent             = "myousync/1.0 ( https://github.com/splamy/myousync )"
	resolverRate          = 1500 * time.Millisecond
	serviceUnavailBackoff = 10 * time.Second
)

// splitPattern matches the "ft./feat./;/&" separators used to pull a
// secondary artist list out of a combined string, mirroring brainz.rs's
// SPLIT_REGEX.
var splitPattern = regexp.MustCompile(`\bft\.?|\bfeat\.?|;|&`)

var bracketReplacer = strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "【", "", "】", "")

// ErrEmptyQuery is returned when a candidate search has no usable terms.
var ErrEmptyQuery = fmt.Errorf("resolver: empty query")

// ErrEmptyResult is returned when every candidate search, and the
// trackid lookup if present, yields nothing.
var ErrEmptyResult = fmt.Errorf("resolver: no results found")

// Resolver performs metadata resolution against the configured provider,
// rate-limited through C1 and cached through C2.
type Resolver struct {
	store   *store.Store
	limiter *ratelimit.Limiter
	client  *http.Client
}

// New constructs a Resolver.
func New(s *store.Store) *Resolver {
	return &Resolver{
		store:   s,
		limiter: ratelimit.New(resolverRate),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// candidate is one search attempt: up to three query terms.
type candidate struct {
	title  qterm
	artist []qterm
	album  qterm
}

// qterm is a query term that is either absent, or present with exact
// matching semantics (the original also supports fuzzy terms; this
// implementation only ever produces exact terms, mirroring every call site
// in brainz.rs).
type qterm struct {
	text    string
	present bool
}

func exact(s string) qterm {
	if s == "" {
		return qterm{}
	}
	return qterm{text: s, present: true}
}

func exactOption(s *string) qterm {
	if s == nil {
		return qterm{}
	}
	return exact(*s)
}

// Resolve runs the candidate search algorithm against query and returns
// the winning result, or ErrEmptyResult if nothing matched.
func (r *Resolver) Resolve(ctx context.Context, query store.ResolverQuery) (*store.ResolverResult, error) {
	if query.TrackID != nil {
		return r.fetchByID(ctx, *query.TrackID)
	}

	candidates := buildCandidates(query)

	if nc, ok := nightcoreShortCircuit(candidates, query.Title); ok {
		return nc, nil
	}

	var lastErr error
	for _, c := range candidates {
		result, err := r.fetch(ctx, c)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyResult, lastErr)
	}
	return nil, ErrEmptyResult
}

// buildCandidates builds up to four candidate searches in priority order.
func buildCandidates(query store.ResolverQuery) []candidate {
	var candidates []candidate

	if query.Album != nil || query.Artist != nil {
		var artists []qterm
		if query.Artist != nil {
			for _, a := range strings.Split(*query.Artist, ",") {
				artists = append(artists, exact(strings.TrimSpace(a)))
			}
		}
		candidates = append(candidates,
			candidate{title: exact(query.Title), artist: artists, album: exactOption(query.Album)},
			candidate{title: exact(query.Title), artist: artists, album: qterm{}},
		)
	}

	if strings.Contains(query.Title, " - ") {
		parts := strings.SplitN(query.Title, " - ", 2)
		candidates = append(candidates,
			candidate{title: exact(parts[1]), artist: splitArtistTerms(parts[0]), album: qterm{}},
			candidate{title: exact(parts[0]), artist: splitArtistTerms(parts[1]), album: qterm{}},
		)
	}

	return candidates
}

func splitArtistTerms(s string) []qterm {
	var terms []qterm
	for _, part := range splitPattern.Split(s, -1) {
		cleaned := bracketReplacer.Replace(strings.TrimSpace(part))
		if cleaned != "" {
			terms = append(terms, exact(cleaned))
		}
	}
	return terms
}

// nightcoreShortCircuit reports whether any candidate's artist list,
// upper-cased, contains the literal "NIGHTCORE", and if so returns a
// synthetic result crediting the "Nightcore" artist and album directly.
func nightcoreShortCircuit(candidates []candidate, fallbackTitle string) (*store.ResolverResult, bool) {
	for _, c := range candidates {
		for _, a := range c.artist {
			if a.present && strings.Contains(strings.ToUpper(a.text), "NIGHTCORE") {
				title := fallbackTitle
				if c.title.present {
					title = c.title.text
				}
				album := "Nightcore"
				return &store.ResolverResult{
					Title:  title,
					Artist: []string{"Nightcore"},
					Album:  &album,
				}, true
			}
		}
	}
	return nil, false
}

// fetch issues (or replays from cache) one candidate search.
func (r *Resolver) fetch(ctx context.Context, c candidate) (*store.ResolverResult, error) {
	query := buildLuceneQuery(c)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	reqURL := baseURL + "?limit=3&query=" + url.QueryEscape(query)
	return r.fetchURL(ctx, reqURL)
}

func (r *Resolver) fetchByID(ctx context.Context, trackID string) (*store.ResolverResult, error) {
	query := "rid:" + trackID
	reqURL := baseURL + "?limit=3&query=" + url.QueryEscape(query)
	return r.fetchURL(ctx, reqURL)
}

func buildLuceneQuery(c candidate) string {
	var parts []string
	if c.title.present {
		parts = append(parts, "recording:\""+c.title.text+"\"")
	}
	for _, a := range c.artist {
		if a.present {
			parts = append(parts, "artist:\""+a.text+"\"")
		}
	}
	if c.album.present {
		parts = append(parts, "release:\""+c.album.text+"\"")
	}
	return strings.Join(parts, " AND ")
}

type mbRecording struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ArtistCredit []struct {
		Name string `json:"name"`
	} `json:"artist-credit"`
	Releases []struct {
		Title string `json:"title"`
	} `json:"releases"`
}

type mbResponse struct {
	Recordings []mbRecording `json:"recordings"`
}

// fetchURL performs one rate-limited, cached GET against the provider. A
// 503 triggers an external back-off observation and one retry.
func (r *Resolver) fetchURL(ctx context.Context, reqURL string) (*store.ResolverResult, error) {
	if cached, ok, err := r.store.TryGetBrainzCache(reqURL); err != nil {
		return nil, err
	} else if ok {
		return parseBrainzResponse([]byte(cached))
	}

	body, err := r.doFetch(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	if err := r.store.SetBrainzCache(reqURL, string(body)); err != nil {
		return nil, fmt.Errorf("cache resolver response: %w", err)
	}

	return parseBrainzResponse(body)
}

func (r *Resolver) doFetch(ctx context.Context, reqURL string) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		r.limiter.Wait()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build resolver request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("resolver connection error: %w", err)
		}

		if resp.StatusCode == http.StatusServiceUnavailable {
			resp.Body.Close()
			r.limiter.ObserveExternalBackoff(serviceUnavailBackoff)
			continue
		}

		defer resp.Body.Close()
		body := make([]byte, 0)
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			body = append(body, buf[:n]...)
			if readErr != nil {
				break
			}
		}
		return body, nil
	}
	return nil, fmt.Errorf("resolver: repeated 503 from provider")
}

func parseBrainzResponse(body []byte) (*store.ResolverResult, error) {
	var parsed mbResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse resolver response: %w", err)
	}
	if len(parsed.Recordings) == 0 {
		return nil, ErrEmptyResult
	}

	rec := parsed.Recordings[0]
	result := &store.ResolverResult{
		RecordingID: &rec.ID,
		Title:       rec.Title,
	}
	for _, ac := range rec.ArtistCredit {
		result.Artist = append(result.Artist, ac.Name)
	}
	if len(rec.Releases) > 0 {
		result.Album = &rec.Releases[0].Title
	}
	return result, nil
}
