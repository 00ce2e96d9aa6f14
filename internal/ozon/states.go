package ozon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/lukman83/kidkazz-catalog/internal/normalize"
)

const (
	searchStatePrefix = "searchResultsV2"
	priceStatePrefix  = "webPrice"
	headingPrefix     = "webProductHeading"
)

// widgetStates maps widget ids to their state JSON. Ozon serves each state
// either as an object or as a JSON-encoded string; values are unwrapped to
// plain objects on the way in.
type widgetStates map[string]json.RawMessage

// parsePageJSON reads the widgetStates of an entrypoint or composer
// response.
func parsePageJSON(data []byte) (widgetStates, error) {
	var page struct {
		WidgetStates map[string]json.RawMessage `json:"widgetStates"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode page json: %w", err)
	}
	states := make(widgetStates, len(page.WidgetStates))
	for k, v := range page.WidgetStates {
		states[k] = unwrapState(v)
	}
	return states, nil
}

// parsePageHTML collects data-state attributes of widget containers in a
// rendered page. The widget id is the element id without the "state-"
// prefix.
func parsePageHTML(page string) (widgetStates, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	states := make(widgetStates)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			id, state := attr(n, "id"), attr(n, "data-state")
			if state != "" && strings.HasPrefix(id, "state-") {
				states[strings.TrimPrefix(id, "state-")] = json.RawMessage(state)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return states, nil
}

func unwrapState(v json.RawMessage) json.RawMessage {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || v[0] != '"' {
		return v
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return v
	}
	return json.RawMessage(s)
}

// keys returns widget ids in a stable order, those with prefix first.
func (s widgetStates) keys(prefix string) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := strings.HasPrefix(keys[i], prefix), strings.HasPrefix(keys[j], prefix)
		if pi != pj {
			return pi
		}
		return keys[i] < keys[j]
	})
	return keys
}

// searchItems returns the raw items of the search results widget, or of
// the first widget that carries an items list at all.
func (s widgetStates) searchItems() []json.RawMessage {
	for _, k := range s.keys(searchStatePrefix) {
		var state struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(s[k], &state); err != nil {
			continue
		}
		if len(state.Items) > 0 {
			return state.Items
		}
	}
	return nil
}

// detailPayload folds the price and heading widgets of a product page into
// one payload that the normalizers read like a search item.
func (s widgetStates) detailPayload(id string) (json.RawMessage, bool) {
	var price struct {
		Price         normalize.Number `json:"price"`
		OriginalPrice normalize.Number `json:"originalPrice"`
		IsAvailable   *bool            `json:"isAvailable"`
	}
	var heading struct {
		Title string `json:"title"`
	}
	foundPrice, foundTitle := false, false
	for _, k := range s.keys(priceStatePrefix) {
		if strings.HasPrefix(k, priceStatePrefix) && normalize.Decode(s[k], &price) == nil {
			foundPrice = true
			break
		}
	}
	for _, k := range s.keys(headingPrefix) {
		if strings.HasPrefix(k, headingPrefix) && normalize.Decode(s[k], &heading) == nil {
			foundTitle = true
			break
		}
	}
	if !foundPrice && !foundTitle {
		return nil, false
	}

	payload := map[string]any{"sku": id, "title": heading.Title}
	if price.Price.Valid {
		payload["price"] = price.Price.Value.String()
	}
	if price.OriginalPrice.Valid {
		payload["originalPrice"] = price.OriginalPrice.Value.String()
	}
	if price.IsAvailable != nil {
		payload["available"] = *price.IsAvailable
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	return raw, true
}
