package wildberries

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

const basketHosts = 39

func parseID(productID string) (int64, error) {
	id, err := strconv.ParseInt(productID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("wildberries id %q: %w", productID, platform.ErrInvalidID)
	}
	return id, nil
}

// basketPath is the CDN path of a product's first large image.
func basketPath(id int64, n int) string {
	return fmt.Sprintf("vol%d/part%d/%d/images/big/%d.webp", id/100000, id/1000, id, n)
}

func basketURL(host string, server int, id int64, n int) string {
	return fmt.Sprintf("https://basket-%02d.%s/%s", server, host, basketPath(id, n))
}

// CandidateURLs interleaves the wbbasket.ru and wb.ru mirrors per basket
// server, then appends the legacy static CDN.
func (c *Client) CandidateURLs(productID string) ([]string, error) {
	id, err := parseID(productID)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, basketHosts*2+2)
	for server := 1; server <= basketHosts; server++ {
		urls = append(urls,
			basketURL("wbbasket.ru", server, id, 1),
			basketURL("wb.ru", server, id, 1),
		)
	}
	urls = append(urls,
		fmt.Sprintf("https://images.wbstatic.net/big/new/%d-1.jpg", id),
		fmt.Sprintf("https://images.wbstatic.net/c516x688/new/%d-1.jpg", id),
	)
	return urls, nil
}

func (c *Client) DirectImageURL(productID string) (string, bool) {
	id, err := parseID(productID)
	if err != nil {
		return "", false
	}
	return basketURL("wbbasket.ru", 1, id, 1), true
}

func (c *Client) ProductURL(productID string) string {
	return fmt.Sprintf("https://www.wildberries.ru/catalog/%s/detail.aspx", productID)
}

// ImageHints reads the picture list from the card API.
func (c *Client) ImageHints(ctx context.Context, productID string) ([]string, error) {
	id, err := parseID(productID)
	if err != nil {
		return nil, err
	}
	p, _, err := c.fetchCard(ctx, productID)
	if err != nil {
		return nil, err
	}

	var urls []string
	switch {
	case len(p.Pics.IDs) > 0:
		ids := p.Pics.IDs
		if len(ids) > 10 {
			ids = ids[:10]
		}
		for _, pic := range ids {
			urls = append(urls,
				fmt.Sprintf("https://images.wbstatic.net/big/new/%d.jpg", pic),
				basketURL("wb.ru", 1, pic, 1),
			)
		}
	case p.Pics.Count > 0:
		n := min(p.Pics.Count, 10)
		for i := 1; i <= n; i++ {
			urls = append(urls, basketURL("wbbasket.ru", 1, id, i))
		}
	}
	urls = append(urls,
		basketURL("wbbasket.ru", 1, id, 1),
		basketURL("wbbasket.ru", 2, id, 1),
	)
	return urls, nil
}
