package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"vtokiosk/internal/i18n"
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// Visitor is what the kiosk infers about where a request comes from.
type Visitor struct {
	Locale  string
	Country string
}

type visitorKey struct{}

// countryHeaders are set by CDNs and proxies in front of the kiosk.
var countryHeaders = []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country", "X-IP-Country"}

// I18N negotiates the visitor's locale and country and stores them in the
// request context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			v := Visitor{Locale: detectLocale(r, defaultLocale, country), Country: country}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), visitorKey{}, v)))
		})
	}
}

func VisitorFromContext(ctx context.Context) (Visitor, bool) {
	v, ok := ctx.Value(visitorKey{}).(Visitor)
	return v, ok
}

// LocaleFromContext returns the negotiated locale, English outside I18N.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := VisitorFromContext(ctx); ok && v.Locale != "" {
		return v.Locale
	}
	return i18n.English
}

func CountryFromContext(ctx context.Context) string {
	v, _ := VisitorFromContext(ctx)
	return v.Country
}

// detectLocale takes X-Locale as given, then a supported Accept-Language
// entry, then the country's locale, then the configured fallback.
func detectLocale(r *http.Request, fallback, country string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return i18n.Match(v)
	}
	if locale, ok := i18n.Find(r.Header.Get("Accept-Language")); ok {
		return locale
	}
	if country != "" {
		return i18n.CountryLocale(country)
	}
	return i18n.Match(fallback)
}

// ResolveCountry tries proxy headers, then a region named by the locale
// headers, then the GeoIP lookup of the client address.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, h := range countryHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); len(v) == 2 {
			return strings.ToUpper(v)
		}
	}
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if region := i18n.Region(r.Header.Get(h)); region != "" {
			return region
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// ClientIP returns the address in r.RemoteAddr. The router runs chi's RealIP
// first, so proxy headers are already applied.
func ClientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
