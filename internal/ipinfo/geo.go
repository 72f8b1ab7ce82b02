package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const geoEndpoint = "http://ip-api.com/json/%s?fields=status,country,countryCode,city,as,org"

// Geo resolves ASN and country for router IPs. The upstream free tier allows
// ~45 req/min and drops excess silently, so lookups are rate limited client
// side and cached for an hour. A miss is an empty field, never an error.
type Geo struct {
	client  *http.Client
	cache   *gocache.Cache
	limiter *rate.Limiter
	log     *zap.Logger
}

type geoEntry struct {
	ASN         string
	Country     string
	CountryCode string
}

// NewGeo builds the lookup service.
func NewGeo(log *zap.Logger) *Geo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Geo{
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   gocache.New(time.Hour, 10*time.Minute),
		limiter: rate.NewLimiter(rate.Every(90*time.Second/60), 5), // ~40/min
		log:     log,
	}
}

// Lookup returns geo data for ip, consulting the cache first.
func (g *Geo) Lookup(ctx context.Context, ip string) (asn, country, countryCode string, ok bool) {
	if v, found := g.cache.Get(ip); found {
		e := v.(geoEntry)
		return e.ASN, e.Country, e.CountryCode, true
	}

	if !g.limiter.Allow() {
		return "", "", "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(geoEndpoint, ip), nil)
	if err != nil {
		return "", "", "", false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return "", "", "", false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if err != nil {
		return "", "", "", false
	}

	var payload struct {
		Status      string `json:"status"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
		AS          string `json:"as"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Status != "success" {
		return "", "", "", false
	}

	e := geoEntry{
		ASN:         trimASPrefix(payload.AS),
		Country:     payload.Country,
		CountryCode: payload.CountryCode,
	}
	g.cache.Set(ip, e, gocache.DefaultExpiration)
	return e.ASN, e.Country, e.CountryCode, true
}

func trimASPrefix(as string) string {
	for i := 0; i < len(as); i++ {
		if as[i] == ' ' {
			as = as[:i]
			break
		}
	}
	if len(as) > 2 && as[:2] == "AS" {
		return as[2:]
	}
	return as
}
