package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrUnsupportedArtifactURI = errors.New("unsupported artifact uri")

// ArtifactStore opens a single artifact by URI.
type ArtifactStore interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Artifacts dispatches on URI scheme: s3://, mlflow-artifacts:/ through the
// tracking server proxy, and file:// or bare local paths.
type Artifacts struct {
	S3       S3API
	Registry *Client
}

func (a *Artifacts) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("[Artifacts] %w: %q: %v", ErrUnsupportedArtifactURI, uri, err)
	}

	slog.Debug("[Artifacts] Opening artifact", slog.String("uri", uri))

	switch u.Scheme {
	case "s3":
		return a.openS3(ctx, u)
	case "mlflow-artifacts":
		if a.Registry == nil {
			return nil, fmt.Errorf("[Artifacts] %w: %q needs a tracking server", ErrUnsupportedArtifactURI, uri)
		}
		return a.Registry.OpenProxied(ctx, u.Path)
	case "file", "":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("[Artifacts] failed to open %s: %w", u.Path, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("[Artifacts] %w: %q", ErrUnsupportedArtifactURI, uri)
	}
}

func (a *Artifacts) openS3(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if a.S3 == nil {
		return nil, fmt.Errorf("[Artifacts] %w: no s3 client configured for %s", ErrUnsupportedArtifactURI, u)
	}
	key := strings.TrimPrefix(u.Path, "/")
	out, err := a.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("[Artifacts] failed to get s3://%s/%s: %w", u.Host, key, err)
	}
	return out.Body, nil
}

// OpenProxied downloads an artifact through the tracking server's
// mlflow-artifacts proxy.
func (c *Client) OpenProxied(ctx context.Context, artifactPath string) (io.ReadCloser, error) {
	endpoint := "/api/2.0/mlflow-artifacts/artifacts/" + strings.TrimLeft(artifactPath, "/")
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
