package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination contains offset-based pagination info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// pageParams reads ?offset and ?limit. Out-of-range limits fall back to the
// default page size.
func pageParams(c *fiber.Ctx) (offset, limit int) {
	offset = max(0, c.QueryInt("offset", 0))
	limit = c.QueryInt("limit", defaultPageLimit)
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	return offset, limit
}

// pageURL rebuilds the request URL with another offset, keeping every other
// query parameter.
func pageURL(c *fiber.Ctx, offset, limit int) string {
	q := url.Values{}
	c.Request().URI().QueryArgs().VisitAll(func(k, v []byte) {
		q.Add(string(k), string(v))
	})
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return c.Path() + "?" + q.Encode()
}

// SetLinkHeaders adds RFC 8288 first/prev/next/last links.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	rels := []struct {
		name   string
		offset int
		ok     bool
	}{
		{"first", 0, true},
		{"prev", max(0, p.Offset-p.Limit), p.Offset > 0},
		{"next", p.Offset + p.Limit, p.Offset+p.Limit < p.Total},
		{"last", max(0, p.Total-p.Limit), true},
	}

	links := make([]string, 0, len(rels))
	for _, r := range rels {
		if r.ok {
			links = append(links, fmt.Sprintf(`<%s>; rel="%s"`, pageURL(c, r.offset, p.Limit), r.name))
		}
	}
	c.Set("Link", strings.Join(links, ", "))
}
