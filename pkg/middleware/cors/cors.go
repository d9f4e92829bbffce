package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const (
	allowHeaders  = "Content-Type, X-Requested-With, X-Request-ID"
	allowMethods  = "GET, POST, OPTIONS"
	exposeHeaders = "X-Request-ID, Location, Content-Disposition"
)

// policy matches request origins against exact entries and "*.domain" wildcards.
type policy struct {
	any       bool
	exact     map[string]struct{}
	wildcards []string
}

func newPolicy(allowedOrigins []string) policy {
	origins := lo.Uniq(lo.FilterMap(allowedOrigins, func(origin string, _ int) (string, bool) {
		origin = normalise(origin)
		return origin, origin != ""
	}))
	p := policy{any: len(origins) == 0 || lo.Contains(origins, "*"), exact: map[string]struct{}{}}
	for _, origin := range origins {
		if suffix, ok := strings.CutPrefix(origin, "*."); ok {
			p.wildcards = append(p.wildcards, "."+suffix)
			continue
		}
		p.exact[origin] = struct{}{}
	}
	return p
}

func (p policy) allows(origin string) bool {
	if p.any {
		return true
	}
	origin = normalise(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return lo.SomeBy(p.wildcards, func(suffix string) bool {
		return strings.HasSuffix(host, suffix)
	})
}

func normalise(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// New returns a CORS middleware for the timetable API. An empty list allows every origin;
// credentials are only advertised for origins that were matched explicitly.
func New(allowedOrigins []string) gin.HandlerFunc {
	p := newPolicy(allowedOrigins)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin == "" && p.any:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && p.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			if !p.any {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
