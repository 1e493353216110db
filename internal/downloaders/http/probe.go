package riptidehttp

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/telsin/riptide/internal/utils"
)

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// Probe issues a metadata request to learn the resource size, whether the
// server honors byte ranges, a filename hint, and the ETag. HEAD is tried
// first; servers that reject it get a GET with a one-byte range instead.
// Range support is only believed when the server says so explicitly.
func Probe(ctx context.Context, link string, client *utils.RiptideHTTPClient) (*utils.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, "HEAD", link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return probeWithGet(ctx, link, client)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return probeWithGet(ctx, link, client)
	}

	result := &utils.ProbeResult{
		RangeSupported: resp.Header.Get("Accept-Ranges") == "bytes",
		Filename:       filenameFromHeader(resp.Header),
		ETag:           cleanETag(resp.Header.Get("ETag")),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
			result.TotalSize = size
		}
	}
	return result, nil
}

// probeWithGet is the fallback for servers without usable HEAD support. A
// one-byte range request both measures the total (via Content-Range) and
// proves range support in a single exchange.
func probeWithGet(ctx context.Context, link string, client *utils.RiptideHTTPClient) (*utils.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error probing URL: %v", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	result := &utils.ProbeResult{
		Filename: filenameFromHeader(resp.Header),
		ETag:     cleanETag(resp.Header.Get("ETag")),
	}
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		result.RangeSupported = true
		result.TotalSize = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	case resp.StatusCode == http.StatusOK:
		result.RangeSupported = resp.Header.Get("Accept-Ranges") == "bytes"
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
				result.TotalSize = size
			}
		}
	default:
		return nil, fmt.Errorf("server returned error: %d", resp.StatusCode)
	}
	return result, nil
}

// parseContentRangeTotal extracts the total from "bytes 0-0/12345". Unknown
// totals ("bytes 0-0/*") yield 0.
func parseContentRangeTotal(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return 0
	}
	total, err := strconv.ParseInt(strings.TrimSpace(header[idx+1:]), 10, 64)
	if err != nil {
		return 0
	}
	return total
}

func filenameFromHeader(h http.Header) string {
	contentDisposition := h.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameRegex.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && fn != "" {
		if strings.HasPrefix(fn, "UTF-8''") {
			unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
			return filenameRegex.ReplaceAllString(unescaped, "_")
		}
	}
	return ""
}

func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// filenameFromURL derives a name from the final path segment, falling back to
// a fixed default for bare hosts.
func filenameFromURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	parts := strings.Split(parsed.Path, "/")
	name := parts[len(parts)-1]
	if name == "" {
		return "download"
	}
	return name
}
