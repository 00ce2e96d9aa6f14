package httputil

import "net/http"

// BrowserHeaders returns common headers for HTML page requests.
func BrowserHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	h.Set("Accept-Encoding", "gzip, br")
	return h
}

// JSONHeaders returns headers for marketplace JSON APIs. origin may be empty.
func JSONHeaders(origin string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	h.Set("Accept-Encoding", "gzip, br")
	if origin != "" {
		h.Set("Origin", origin)
		h.Set("Referer", origin+"/")
	}
	return h
}

// ImageHeaders returns headers for CDN image probes and downloads.
func ImageHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	return h
}
