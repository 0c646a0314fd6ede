package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v57/github"

	"github.com/Shavakan/secrets-fleet/pkg/logging"
)

var enumLog = logging.WithComponent(logging.LogTypeEnumerate, "repositories")

// Repository is an immutable snapshot of a target repository, fetched once
// per run.
type Repository struct {
	Owner      string
	Name       string
	FullName   string
	Visibility string // "public" or "private"
	Archived   bool
	Disabled   bool
	Providers  []string // cloud providers matched by the classifier
}

// Filter selects which repositories a run targets.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterPublic   Filter = "public"
	FilterPrivate  Filter = "private"
	FilterSpecific Filter = "specific"
)

const listPageSize = 100

// ListRepositories enumerates repositories owned by the authenticated
// account, applying the filter. Archived and disabled repositories are
// always excluded. For FilterSpecific, names that do not resolve are
// returned as NotFoundError values in skipped; they never fail the run.
// An AuthorizationError return aborts the run before any mutation.
func (c *Client) ListRepositories(ctx context.Context, owner string, filter Filter, specific []string) (repos []Repository, skipped []error, err error) {
	if filter == FilterSpecific {
		return c.listSpecific(ctx, owner, specific)
	}

	opts := &gogithub.RepositoryListOptions{
		Visibility:  string(FilterAll),
		Affiliation: "owner",
		ListOptions: gogithub.ListOptions{PerPage: listPageSize},
	}
	if filter == FilterPublic || filter == FilterPrivate {
		opts.Visibility = string(filter)
	}

	for {
		page, resp, listErr := c.listPage(ctx, opts)
		if listErr != nil {
			return nil, nil, classifyError(listErr, resp, "", "")
		}

		for _, r := range page {
			snapshot, eligible := snapshotRepo(r)
			if !eligible {
				continue
			}
			repos = append(repos, snapshot)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	enumLog.Info("repositories enumerated",
		slog.String(logging.KeyOwner, owner),
		slog.String(logging.KeyFilter, string(filter)),
		slog.Int(logging.KeyCount, len(repos)))
	return repos, nil, nil
}

// listPage fetches one page of the authenticated user's repositories,
// retrying transient errors with exponential backoff.
func (c *Client) listPage(ctx context.Context, opts *gogithub.RepositoryListOptions) ([]*gogithub.Repository, *gogithub.Response, error) {
	var lastErr error
	var lastResp *gogithub.Response
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, lastResp, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}

		page, resp, err := c.gh.Repositories.List(ctx, "", opts)
		if err == nil {
			return page, resp, nil
		}
		lastErr = err
		lastResp = resp

		var httpResp *http.Response
		if resp != nil {
			httpResp = resp.Response
		}
		if !isRetryableStatus(httpResp, nil) {
			return nil, resp, err
		}
	}
	return nil, lastResp, lastErr
}

// listSpecific resolves each requested name individually. A 404 becomes a
// NotFoundError in skipped; other lookup failures land in skipped with
// their classified cause. Archived or disabled matches are silently
// excluded like every other filter.
func (c *Client) listSpecific(ctx context.Context, owner string, names []string) (repos []Repository, skipped []error, err error) {
	for _, name := range names {
		r, resp, getErr := c.gh.Repositories.Get(ctx, owner, name)
		if getErr != nil {
			if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
				skipped = append(skipped, &NotFoundError{Owner: owner, Name: name})
				enumLog.Warn("repository not found",
					slog.String(logging.KeyOwner, owner),
					slog.String(logging.KeyRepo, name))
				continue
			}
			classified := classifyError(getErr, resp, "", "")
			if IsAuthorization(classified) {
				return nil, nil, classified
			}
			// Keep the real cause; a server error is not a missing repository.
			skipped = append(skipped, fmt.Errorf("%s/%s: %w", owner, name, classified))
			enumLog.Warn("repository lookup failed",
				slog.String(logging.KeyOwner, owner),
				slog.String(logging.KeyRepo, name),
				slog.String(logging.KeyError, classified.Error()))
			continue
		}

		snapshot, eligible := snapshotRepo(r)
		if !eligible {
			continue
		}
		repos = append(repos, snapshot)
	}

	enumLog.Info("repositories enumerated",
		slog.String(logging.KeyOwner, owner),
		slog.String(logging.KeyFilter, string(FilterSpecific)),
		slog.Int(logging.KeyCount, len(repos)))
	return repos, skipped, nil
}

// snapshotRepo converts an API repository into the run snapshot.
// Archived and disabled repositories are never eligible.
func snapshotRepo(r *gogithub.Repository) (Repository, bool) {
	if r.GetArchived() || r.GetDisabled() {
		return Repository{}, false
	}
	visibility := "public"
	if r.GetPrivate() {
		visibility = "private"
	}
	return Repository{
		Owner:      r.GetOwner().GetLogin(),
		Name:       r.GetName(),
		FullName:   r.GetFullName(),
		Visibility: visibility,
	}, true
}
