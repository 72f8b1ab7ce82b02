// Package ipinfo tracks the public address via a rotating provider list and
// resolves geolocation with a cached, rate-limited lookup.
package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
)

// provider describes one public-IP endpoint. JSON providers also carry geo
// fields; plain-text ones return just the address.
type provider struct {
	URL  string
	JSON bool
}

// DefaultProviders are tried in order until one returns a valid address.
var DefaultProviders = []provider{
	{URL: "http://ip-api.com/json/", JSON: true},
	{URL: "http://ifconfig.me/ip"},
	{URL: "http://icanhazip.com/"},
	{URL: "http://ipecho.net/plain"},
}

// Worker polls the providers and commits validated results.
type Worker struct {
	providers []provider
	client    *http.Client
	repo      *stats.Repository
	log       *zap.Logger
	next      int
}

// NewWorker wires the public-IP worker.
func NewWorker(repo *stats.Repository, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		providers: DefaultProviders,
		client:    &http.Client{Timeout: 5 * time.Second},
		repo:      repo,
		log:       log,
	}
}

// RunOnce tries providers starting from the last successful one. A malformed
// response is a transient failure: the next provider is tried and no state
// is touched, so a garbage reply can never fake an IP change.
func (w *Worker) RunOnce(ctx context.Context) error {
	for i := 0; i < len(w.providers); i++ {
		p := w.providers[(w.next+i)%len(w.providers)]
		info, err := w.fetch(ctx, p)
		if err != nil {
			w.log.Debug("ip provider failed", zap.String("url", p.URL), zap.Error(err))
			continue
		}
		w.next = (w.next + i) % len(w.providers)

		changed, previous := w.repo.UpdatePublicIP(info)
		if changed {
			w.log.Info("public ip changed",
				zap.String("previous", previous),
				zap.String("current", info.IP))
		}
		return nil
	}
	return fmt.Errorf("all ip providers failed")
}

func (w *Worker) fetch(ctx context.Context, p provider) (model.PublicIP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return model.PublicIP{}, err
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := w.client.Do(req)
	if err != nil {
		return model.PublicIP{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.PublicIP{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return model.PublicIP{}, err
	}

	info := model.PublicIP{Provider: p.URL, FetchedAt: time.Now().UTC()}

	if p.JSON {
		var payload struct {
			Query       string `json:"query"`
			Country     string `json:"country"`
			CountryCode string `json:"countryCode"`
			City        string `json:"city"`
			AS          string `json:"as"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return model.PublicIP{}, err
		}
		ip, err := normalizeIP(payload.Query)
		if err != nil {
			return model.PublicIP{}, err
		}
		info.IP = ip
		info.Country = payload.Country
		info.CountryCode = payload.CountryCode
		info.City = payload.City
		info.ASN = strings.TrimPrefix(strings.SplitN(payload.AS, " ", 2)[0], "AS")
		return info, nil
	}

	ip, err := normalizeIP(string(body))
	if err != nil {
		return model.PublicIP{}, err
	}
	info.IP = ip
	return info, nil
}

// normalizeIP validates a provider response as a real address.
func normalizeIP(raw string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return "", fmt.Errorf("invalid ip %q", strings.TrimSpace(raw))
	}
	return ip.String(), nil
}
