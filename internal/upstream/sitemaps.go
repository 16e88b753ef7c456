// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package upstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/visibility"
)

// SitemapsPath is the upstream REST path listing all sitemaps.
const SitemapsPath = "/rest/sitemaps"

// maxSitemapListBody bounds the list body read into memory for filtering.
const maxSitemapListBody = 8 << 20

// ErrSitemapListTooLarge is returned when the upstream list exceeds maxSitemapListBody.
var ErrSitemapListTooLarge = errors.New("sitemap list too large")

// isSitemapList reports whether path is the sitemap list endpoint.
func isSitemapList(path string) bool {
	return strings.HasSuffix(strings.TrimSuffix(path, "/"), SitemapsPath)
}

// SitemapListFilter returns a ResponseFilter that removes sitemaps hidden
// from the caller's role in successful GET /rest/sitemaps responses.
// roleOf resolves the caller's effective role from the original request.
// Any failure to filter is returned as an error so the body is never passed
// through unfiltered.
func SitemapListFilter(filter *visibility.Filter, roleOf func(*http.Request) auth.Role) ResponseFilter {
	return func(resp *http.Response) error {
		req := resp.Request
		if req == nil || req.Method != http.MethodGet || !isSitemapList(req.URL.Path) {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil
		}
		if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
			return fmt.Errorf("filter sitemaps: unsupported content encoding %q", enc)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapListBody+1))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("filter sitemaps: read body: %w", err)
		}
		if len(data) > maxSitemapListBody {
			return ErrSitemapListTooLarge
		}

		filtered, err := filter.FilterListPayload(data, roleOf(req))
		if err != nil {
			return fmt.Errorf("filter sitemaps: %w", err)
		}

		resp.Body = io.NopCloser(bytes.NewReader(filtered))
		resp.ContentLength = int64(len(filtered))
		resp.Header.Set("Content-Length", strconv.Itoa(len(filtered)))
		resp.Header.Del("ETag")
		return nil
	}
}
