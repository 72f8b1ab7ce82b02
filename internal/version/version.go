// Package version polls the release endpoint on a long period and surfaces
// "update available" through the repository only.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	defaultEndpoint = "https://api.github.com/repos/tinytelemetry/netwatch/tags"
	requestTimeout  = 5 * time.Second
	maxAttempts     = 3
	initialBackoff  = 500 * time.Millisecond
)

// Worker checks for newer releases.
type Worker struct {
	current  string
	endpoint string
	client   *http.Client
	repo     *stats.Repository
	log      *zap.Logger
}

// NewWorker wires the version poller. endpoint may be empty for the default.
func NewWorker(current, endpoint string, repo *stats.Repository, log *zap.Logger) *Worker {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		current:  current,
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
		repo:     repo,
		log:      log,
	}
}

// RunOnce fetches the latest tag with retry and commits the result.
func (w *Worker) RunOnce(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff

	latest, err := backoff.Retry(ctx, func() (string, error) {
		return w.fetchLatest(ctx)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxAttempts))
	if err != nil {
		w.log.Debug("version check failed", zap.Error(err))
		return nil // transient; next tick retries
	}

	w.repo.SetVersion(model.VersionStatus{
		Current:         w.current,
		Latest:          latest,
		UpdateAvailable: Newer(latest, w.current),
		CheckedAt:       time.Now().UTC(),
	})
	return nil
}

func (w *Worker) fetchLatest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "netwatch/"+w.current)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return "", err
	}

	var tags []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &tags); err != nil {
		return "", backoff.Permanent(err)
	}
	if len(tags) == 0 {
		return "", backoff.Permanent(fmt.Errorf("no tags"))
	}
	return tags[0].Name, nil
}

var numRe = regexp.MustCompile(`^(\d+)`)

// parse splits a version string into numeric components, tolerating a
// leading v and suffixes like -rc2.
func parse(v string) []int {
	v = strings.TrimLeft(v, "vV")
	var parts []int
	for _, p := range strings.Split(v, ".") {
		if m := numRe.FindStringSubmatch(p); m != nil {
			n, _ := strconv.Atoi(m[1])
			parts = append(parts, n)
		}
	}
	return parts
}

// Newer reports whether latest is a strictly newer release than current.
func Newer(latest, current string) bool {
	l, c := parse(latest), parse(current)
	for len(l) < len(c) {
		l = append(l, 0)
	}
	for len(c) < len(l) {
		c = append(c, 0)
	}
	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}
