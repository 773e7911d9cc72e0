// Package secrets loads the Slack signing secret from the Google Cloud Secret
// Manager or from a local file.
package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/m-lab/slackhook/static"
)

var errEmptySecret = errors.New("signing secret is empty")

// SecretClient wraps the AccessSecretVersion and ListSecretVersions functions
// provided by the secretmanager.Client.
type SecretClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest, opts ...gax.CallOption) *secretmanager.SecretVersionIterator
}

// iter warps the Next() method of a *secretmanager.SecretVersionIterator.
type iter interface {
	Next(it *secretmanager.SecretVersionIterator) (*secretmanagerpb.SecretVersion, error)
}

// stdIter implements the iter interfaces, and is used to invoke the
// iterator.Next() method.
type stdIter struct{}

// Next invokes the Next() method of a *secretmanager.SecretVersionIterator.
func (s *stdIter) Next(it *secretmanager.SecretVersionIterator) (*secretmanagerpb.SecretVersion, error) {
	return it.Next()
}

// Config contains settings for secrets.
type Config struct {
	iter    iter
	Project string
}

// NewConfig creates a new secret config.
func NewConfig(project string) *Config {
	return &Config{
		iter:    &stdIter{},
		Project: project,
	}
}

// getSecret fetches the version of a secret specified by 'path' from the Secret
// Manager API.
func (c *Config) getSecret(ctx context.Context, client SecretClient, path string) ([]byte, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: path,
	}

	result, err := client.AccessSecretVersion(ctx, req)
	if err != nil {
		return nil, err
	}

	return result.Payload.Data, nil
}

// getSecretVersions returns a slice of all *enabled* versions for a secret,
// newest first. It will ignore disabled or destroyed versions of a secret.
func (c *Config) getSecretVersions(ctx context.Context, client SecretClient, name string) ([]string, error) {
	req := &secretmanagerpb.ListSecretVersionsRequest{
		Parent:   c.path(name),
		PageSize: static.SecretVersionsPerPage,
	}

	it := client.ListSecretVersions(ctx, req)
	versions := []string{}
	for {
		resp, err := c.iter.Next(it)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if resp.State != secretmanagerpb.SecretVersion_ENABLED {
			continue
		}
		versions = append(versions, resp.Name)
	}

	if len(versions) < 1 {
		return nil, fmt.Errorf("no versions found for secret: %s", name)
	}

	return versions, nil
}

// LoadSigningSecret fetches the newest enabled version of the named secret
// containing the Slack signing secret from the Secret Manager API.
func (c *Config) LoadSigningSecret(ctx context.Context, client SecretClient, name string) ([]byte, error) {
	versions, err := c.getSecretVersions(ctx, client, name)
	if err != nil {
		return nil, err
	}
	log.Infof("Loading Slack signing secret %v", versions[0])
	secret, err := c.getSecret(ctx, client, versions[0])
	if err != nil {
		return nil, err
	}
	return clean(secret)
}

func (c *Config) path(name string) string {
	return "projects/" + c.Project + "/secrets/" + name
}

// clean removes surrounding whitespace, typically a trailing newline left by
// the tool that stored the secret.
func clean(secret []byte) ([]byte, error) {
	secret = bytes.TrimSpace(secret)
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	return secret, nil
}
