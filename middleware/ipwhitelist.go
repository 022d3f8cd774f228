package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// IPWhitelist admits only clients listed in entries, each a single address
// ("10.0.0.5") or a CIDR range ("10.0.0.0/24"). Unparseable entries are
// skipped. An empty list admits everyone.
func IPWhitelist(entries []string) gin.HandlerFunc {
	var ranges []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			ranges = append(ranges, p.Masked())
		} else if a, err := netip.ParseAddr(e); err == nil {
			ranges = append(ranges, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	if len(entries) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		addr, err := netip.ParseAddr(c.ClientIP())
		if err == nil {
			addr = addr.Unmap()
			for _, p := range ranges {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}
		abort(c, http.StatusForbidden, "access denied")
	}
}
