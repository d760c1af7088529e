package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// Release is one published release of the application.
type Release struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"html_url"`
	Body        *string   `json:"body"`
}

// IsNewerThan reports whether the release tag is a strictly newer semantic
// version than current. Unparseable versions never count as newer.
func (r *Release) IsNewerThan(current string) bool {
	if r == nil {
		return false
	}
	releaseVersion, err := goversion.NewVersion(r.TagName)
	if err != nil {
		return false
	}
	currentVersion, err := goversion.NewVersion(current)
	if err != nil {
		return false
	}
	return releaseVersion.GreaterThan(currentVersion)
}

// Checker fetches the latest published release from a GitHub-style releases
// endpoint.
type Checker struct {
	Owner string
	Repo  string

	client *http.Client
}

func NewChecker(owner, repo string) *Checker {
	return &Checker{
		Owner:  owner,
		Repo:   repo,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Checker) get(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", c.Owner, c.Repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build release request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch latest release")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("release endpoint responded %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, errors.Wrap(err, "could not decode release response")
	}
	return &release, nil
}

// CheckNewVersion returns the latest release when it is newer than the
// currently running version, or nil.
func (c *Checker) CheckNewVersion(ctx context.Context, current string) (*Release, error) {
	if current == "dev" {
		return nil, nil
	}

	release, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	if !release.IsNewerThan(current) {
		return nil, nil
	}
	return release, nil
}
