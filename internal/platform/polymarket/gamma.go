// Package polymarket holds the wire types for the CLOB websocket feed and
// the Gamma REST client used to resolve a human market reference to the
// outcome token the process watches.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marciob/polywatch/internal/domain"
)

// GammaClient is a read-only client for the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// flexBool unmarshals from JSON bool or string ("true"/"false"), covering
// both encodings the Gamma API uses for "active".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIMarket is the subset of the Gamma market response the resolver needs.
// Outcomes and ClobTokenIDs are JSON-encoded arrays inside strings, e.g.
// "[\"Yes\",\"No\"]".
type APIMarket struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Slug         string   `json:"slug"`
	Outcomes     string   `json:"outcomes"`
	ClobTokenIDs string   `json:"clobTokenIds"`
	Active       flexBool `json:"active"`
	Closed       bool     `json:"closed"`
}

// tokens decodes the paired outcome and token-id lists.
func (m *APIMarket) tokens() []domain.OutcomeToken {
	var ids, outcomes []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil
	}
	// Outcome labels are best-effort; ids alone are enough to subscribe.
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)

	out := make([]domain.OutcomeToken, 0, len(ids))
	for i, id := range ids {
		tok := domain.OutcomeToken{TokenID: id}
		if i < len(outcomes) {
			tok.Outcome = outcomes[i]
		}
		out = append(out, tok)
	}
	return out
}

// ResolveInstrument turns a human-supplied market reference (full URL, slug,
// or CLOB token id) plus an optional outcome label into the instrument the
// feed will watch. An empty outcome selects the market's first outcome.
func (g *GammaClient) ResolveInstrument(ctx context.Context, ref, outcome string) (domain.Instrument, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Instrument{}, fmt.Errorf("polymarket/gamma: empty market reference")
	}

	if isTokenID(ref) {
		return g.resolveByTokenID(ctx, ref)
	}

	slug := slugFromRef(ref)
	market, err := g.marketBySlug(ctx, slug)
	if err != nil {
		return domain.Instrument{}, err
	}
	return instrumentFromMarket(market, outcome, "")
}

// resolveByTokenID looks the market up by CLOB token id so the display
// labels can still be filled in.
func (g *GammaClient) resolveByTokenID(ctx context.Context, tokenID string) (domain.Instrument, error) {
	params := url.Values{}
	params.Set("clob_token_ids", tokenID)

	var markets []APIMarket
	if err := g.getJSON(ctx, "/markets?"+params.Encode(), &markets); err != nil {
		return domain.Instrument{}, err
	}
	if len(markets) == 0 {
		// The id is usable even when Gamma does not know the market.
		return domain.Instrument{
			TokenID:  tokenID,
			Siblings: []domain.OutcomeToken{{TokenID: tokenID}},
		}, nil
	}
	return instrumentFromMarket(&markets[0], "", tokenID)
}

// marketBySlug fetches a single market by its URL slug.
func (g *GammaClient) marketBySlug(ctx context.Context, slug string) (*APIMarket, error) {
	params := url.Values{}
	params.Set("slug", slug)

	var markets []APIMarket
	if err := g.getJSON(ctx, "/markets?"+params.Encode(), &markets); err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("polymarket/gamma: market slug %q: %w", slug, domain.ErrNotFound)
	}
	return &markets[0], nil
}

// instrumentFromMarket picks the watched outcome token: by explicit token id
// when given, by outcome label otherwise, defaulting to the first outcome.
func instrumentFromMarket(m *APIMarket, outcome, tokenID string) (domain.Instrument, error) {
	siblings := m.tokens()
	if len(siblings) == 0 {
		return domain.Instrument{}, fmt.Errorf("polymarket/gamma: market %q has no tradable tokens", m.Slug)
	}

	pick := siblings[0]
	for _, tok := range siblings {
		if tokenID != "" && tok.TokenID == tokenID {
			pick = tok
			break
		}
		if tokenID == "" && outcome != "" && strings.EqualFold(tok.Outcome, outcome) {
			pick = tok
			break
		}
	}

	return domain.Instrument{
		TokenID:    pick.TokenID,
		MarketName: m.Question,
		Outcome:    pick.Outcome,
		Siblings:   siblings,
	}, nil
}

// isTokenID reports whether ref looks like a raw CLOB token id (a long
// decimal numeral).
func isTokenID(ref string) bool {
	if len(ref) < 16 {
		return false
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// slugFromRef extracts the market slug from a full polymarket.com URL, or
// returns the reference unchanged when it is already a slug.
func slugFromRef(ref string) string {
	if !strings.Contains(ref, "/") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ref
	}
	return parts[len(parts)-1]
}

// getJSON sends an unauthenticated GET and decodes the JSON response.
func (g *GammaClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("polymarket/gamma: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/gamma: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/gamma: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/gamma: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("polymarket/gamma: decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
