package server

import (
	"net/http"
	"regexp"
	"strings"
)

const defaultAllowHeaders = "Content-Type, Authorization, X-Requested-With"

var (
	shopifyStoreOrigin = regexp.MustCompile(`(?i)^https://[a-z0-9-]+\.myshopify\.com$`)
	shopifyAdminOrigin = regexp.MustCompile(`(?i)^https://admin\.shopify\.com$`)
	localOrigin        = regexp.MustCompile(`(?i)^http://(localhost|127\.0\.0\.1)(:\d+)?$`)
	localSecureOrigin  = regexp.MustCompile(`(?i)^https://(localhost|127\.0\.0\.1)(:\d+)?$`)
)

// corsPolicy decides which browser origins may read responses.
type corsPolicy struct {
	exact       map[string]struct{}
	subdomains  *regexp.Regexp
	shopify     bool
	development bool
}

func newCORSPolicy(cfg *Config) *corsPolicy {
	domain := cfg.corsDomain()
	p := &corsPolicy{
		exact: map[string]struct{}{
			"https://" + domain:     {},
			"https://www." + domain: {},
		},
		subdomains:  regexp.MustCompile(`(?i)^https://([a-z0-9-]+\.)*` + regexp.QuoteMeta(domain) + `$`),
		shopify:     !cfg.CORSDisableShopify,
		development: cfg.Development,
	}
	for _, o := range cfg.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			p.exact[o] = struct{}{}
		}
	}
	return p
}

// allowed reports whether origin may read responses.
// Requests without an Origin are not from a browser and are always allowed.
func (p *corsPolicy) allowed(origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if p.subdomains.MatchString(origin) {
		return true
	}
	if p.shopify && (shopifyStoreOrigin.MatchString(origin) || shopifyAdminOrigin.MatchString(origin)) {
		return true
	}
	if localOrigin.MatchString(origin) {
		return true
	}
	if p.development && localSecureOrigin.MatchString(origin) {
		return true
	}
	return false
}

// withCORS sets CORS headers on every response, including errors, and
// answers preflight requests itself.
func withCORS(p *corsPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		h.Add("Vary", "Origin")

		if p.allowed(origin) {
			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS,HEAD")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", defaultAllowHeaders)
			}
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
