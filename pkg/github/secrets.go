package github

import (
	"context"
	"fmt"
	"net/http"

	gogithub "github.com/google/go-github/v57/github"
)

// GetPublicKey fetches the Actions public key for a repository. Keys are
// cached for the run; GitHub rotates them rarely and a run is short-lived.
func (c *Client) GetPublicKey(ctx context.Context, owner, repo string) (*gogithub.PublicKey, error) {
	cacheKey := owner + "/" + repo

	c.mu.RLock()
	key, ok := c.keys[cacheKey]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	key, resp, err := c.gh.Actions.GetRepoPublicKey(ctx, owner, repo)
	if err != nil {
		return nil, classifyError(err, resp, cacheKey, "")
	}
	if key.GetKey() == "" || key.GetKeyID() == "" {
		return nil, fmt.Errorf("empty public key material for %s", cacheKey)
	}

	c.mu.Lock()
	c.keys[cacheKey] = key
	c.mu.Unlock()

	return key, nil
}

// PutSecret issues the create-or-update call for one repository secret.
// Returns created=true when the secret did not exist before (HTTP 201) and
// false when an existing value was overwritten (HTTP 204, last-write-wins).
func (c *Client) PutSecret(ctx context.Context, owner, repo, name, keyID, ciphertext string) (created bool, err error) {
	fullName := owner + "/" + repo
	resp, err := c.gh.Actions.CreateOrUpdateRepoSecret(ctx, owner, repo, &gogithub.EncryptedSecret{
		Name:           name,
		KeyID:          keyID,
		EncryptedValue: ciphertext,
	})
	if err != nil {
		classified := classifyError(err, resp, fullName, name)
		if deployErr, ok := classified.(*DeployError); ok {
			return false, deployErr
		}
		if IsAuthorization(classified) {
			// Mid-run scope loss is scoped to the pair like any other
			// rejection; only enumeration-time auth failures abort the run.
			return false, &DeployError{Repo: fullName, Secret: name, Err: classified}
		}
		return false, &DeployError{Repo: fullName, Secret: name, Err: err}
	}

	return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusCreated, nil
}
