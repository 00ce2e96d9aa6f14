package ozon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/lukman83/kidkazz-catalog/internal/httputil"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

var (
	numberedTemplates = []string{
		"https://ozon-st.cdn.ngenix.net/m/%s/%d.%s",
		"https://cdn1.ozone.ru/multimedia/%s/%d.%s",
		"https://cdn2.ozone.ru/multimedia/%s/%d.%s",
	}
	namedTemplates = []string{
		"https://ozon-st.cdn.ngenix.net/m/%s/image.%s",
		"https://ozon-st.cdn.ngenix.net/m/%s/main.%s",
	}
	extraTemplates = []string{
		"https://ozon-st.cdn.ngenix.net/m/%s/1.jpg",
		"https://ozon-st.cdn.ngenix.net/m/%s/1.webp",
		"https://cdn1.ozone.ru/multimedia/%s/1.jpg",
		"https://cdn1.ozone.ru/multimedia/wc1000/%s.jpg",
		"https://ozon-st.cdn.ngenix.net/m/%s/1_1000.jpg",
	}
	imageExts = []string{"jpg", "webp", "png"}
)

const imagesPerTemplate = 5

func parseID(productID string) (string, error) {
	id, ok := ExtractNumericID(productID)
	if !ok {
		return "", fmt.Errorf("ozon id %q: %w", productID, platform.ErrInvalidID)
	}
	return id, nil
}

// CandidateURLs walks the multimedia and ngenix templates by image number
// and extension, followed by a few fixed layouts. Duplicates keep their
// first position.
func (c *Client) CandidateURLs(productID string) ([]string, error) {
	id, err := parseID(productID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, tmpl := range numberedTemplates {
		for n := 1; n <= imagesPerTemplate; n++ {
			for _, ext := range imageExts {
				add(fmt.Sprintf(tmpl, id, n, ext))
			}
		}
	}
	for _, tmpl := range namedTemplates {
		for _, ext := range imageExts {
			add(fmt.Sprintf(tmpl, id, ext))
		}
	}
	for _, tmpl := range extraTemplates {
		add(fmt.Sprintf(tmpl, id))
	}
	return urls, nil
}

func (c *Client) DirectImageURL(productID string) (string, bool) {
	id, err := parseID(productID)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("https://cdn1.ozone.ru/s3/multimedia/%s/image/1.jpg", id), true
}

func (c *Client) ProductURL(productID string) string {
	if id, ok := ExtractNumericID(productID); ok {
		productID = id
	}
	return c.baseURL + "/product/" + productID + "/"
}

// ImageHints asks the composer and product-info APIs for image URLs, then
// falls back to the og:image of the product page.
func (c *Client) ImageHints(ctx context.Context, productID string) ([]string, error) {
	id, err := parseID(productID)
	if err != nil {
		return nil, err
	}

	endpoints := []string{
		c.baseURL + "/api/composer-api.bx/page/json/v2?url=" + url.QueryEscape("/product/"+id+"/"),
		c.baseURL + "/api/product/" + id + "/info/",
	}
	headers := httputil.JSONHeaders("")
	headers.Set("Referer", c.ProductURL(id))

	var lastErr error
	for _, endpoint := range endpoints {
		var data any
		if err := httputil.FetchJSON(ctx, c.client, endpoint, headers, 0, &data); err != nil {
			lastErr = err
			continue
		}
		if images := collectImageURLs(data); len(images) > 0 {
			return images, nil
		}
	}

	if img, err := c.ogImage(ctx, id); err == nil && img != "" {
		return []string{img}, nil
	} else if err != nil {
		lastErr = err
	}
	return nil, lastErr
}

// collectImageURLs walks decoded JSON and returns http image URLs in
// document order without duplicates.
func collectImageURLs(data any) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if looksLikeImage(t) && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(data)
	return out
}

func looksLikeImage(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	lower := strings.ToLower(s)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func (c *Client) ogImage(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProductURL(id), nil)
	if err != nil {
		return "", err
	}
	for k, v := range httputil.BrowserHeaders() {
		req.Header[k] = v
	}
	resp, err := httputil.DoWithRetry(c.client, req, 0)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &httputil.StatusError{Code: resp.StatusCode, URL: req.URL.String()}
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return "", err
	}
	return extractOGImage(string(body))
}

// extractOGImage returns the og:image meta content, or the first gallery
// image when the page has no og:image.
func extractOGImage(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	var og, gallery string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if og != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if attr(n, "property") == "og:image" {
					og = attr(n, "content")
				}
			case "img":
				if gallery == "" && attr(n, "data-widget") == "webGallery" {
					gallery = attr(n, "src")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if og != "" {
		return og, nil
	}
	return gallery, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
