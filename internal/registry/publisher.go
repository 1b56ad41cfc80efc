package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/nn"
	"github.com/JoseManu96/ml.school/internal/preprocess"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// Artifact object names within one published version.
const (
	manifestObject = "manifest.json"
	modelObject    = "model.json"
	featuresObject = "features.json"
	targetObject   = "target.json"
)

// Publisher writes model bundles to a blob bucket. Versions are assigned
// sequentially per model name by scanning the existing version folders.
type Publisher struct {
	bucket *blob.Bucket
	log    *logger.Logger
	now    func() time.Time
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger attaches a logger to the publisher.
func WithPublisherLogger(log *logger.Logger) PublisherOption {
	return func(p *Publisher) {
		p.log = log
	}
}

// NewPublisher opens the bucket behind bucketURL. The URL scheme selects
// the backing store: mem:// for in-memory, file:// for a local directory,
// s3:// for S3-compatible object stores. An unreachable bucket aborts the
// run before any step executes.
func NewPublisher(ctx context.Context, bucketURL string, opts ...PublisherOption) (*Publisher, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, mlerrors.NewRunInitError(bucketURL, err)
	}

	publisher := &Publisher{bucket: bucket, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher, nil
}

// Close releases the underlying bucket.
func (p *Publisher) Close() error {
	return p.bucket.Close()
}

// Publish stores a bundle as the next version of its model and returns the
// assigned version number. Every failure is a PublishError; the caller
// decides whether the accuracy gate makes it fatal.
func (p *Publisher) Publish(ctx context.Context, bundle *Bundle) (int, error) {
	if err := bundle.validate(); err != nil {
		return 0, mlerrors.NewPublishError(bundleName(bundle), err)
	}

	version, err := p.nextVersion(ctx, bundle.Name)
	if err != nil {
		return 0, mlerrors.NewPublishError(bundle.Name, err)
	}

	manifest := Manifest{
		Name:         bundle.Name,
		Version:      version,
		RunID:        bundle.RunID,
		CreatedAt:    p.now().UTC(),
		Signature:    bundle.Signature,
		Requirements: bundle.Requirements,
	}

	objects := []struct {
		name  string
		value any
	}{
		{modelObject, bundle.Model},
		{featuresObject, bundle.Features},
		{targetObject, bundle.Target},
		{manifestObject, manifest},
	}
	for _, object := range objects {
		if err := p.writeJSON(ctx, versionKey(bundle.Name, version, object.name), object.value); err != nil {
			return 0, mlerrors.NewPublishError(bundle.Name, err)
		}
	}

	p.log.WithFields(logger.Fields{"model": bundle.Name, "version": version}).Info("Registered model version.")
	return version, nil
}

// Latest returns the highest published version of a model, or zero when
// the model has never been published.
func (p *Publisher) Latest(ctx context.Context, name string) (int, error) {
	return p.latestVersion(ctx, name)
}

// Load reads a published version back into a bundle.
func (p *Publisher) Load(ctx context.Context, name string, version int) (*Bundle, error) {
	var manifest Manifest
	if err := p.readJSON(ctx, versionKey(name, version, manifestObject), &manifest); err != nil {
		return nil, err
	}

	var model []nn.LayerWeights
	if err := p.readJSON(ctx, versionKey(name, version, modelObject), &model); err != nil {
		return nil, err
	}
	var features preprocess.FeaturesState
	if err := p.readJSON(ctx, versionKey(name, version, featuresObject), &features); err != nil {
		return nil, err
	}
	var target preprocess.TargetState
	if err := p.readJSON(ctx, versionKey(name, version, targetObject), &target); err != nil {
		return nil, err
	}

	return &Bundle{
		Name:         manifest.Name,
		RunID:        manifest.RunID,
		Model:        model,
		Features:     features,
		Target:       target,
		Signature:    manifest.Signature,
		Requirements: manifest.Requirements,
	}, nil
}

// Manifest reads only the manifest of a published version. Listings use
// it to avoid pulling the model weights.
func (p *Publisher) Manifest(ctx context.Context, name string, version int) (*Manifest, error) {
	var manifest Manifest
	if err := p.readJSON(ctx, versionKey(name, version, manifestObject), &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// nextVersion assigns one past the highest existing version so deleted
// versions are never reused.
func (p *Publisher) nextVersion(ctx context.Context, name string) (int, error) {
	latest, err := p.latestVersion(ctx, name)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

func (p *Publisher) latestVersion(ctx context.Context, name string) (int, error) {
	prefix := versionsPrefix(name)
	iter := p.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})

	latest := 0
	for {
		object, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to list versions of %q: %w", name, err)
		}
		if !object.IsDir {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(object.Key, prefix), "/")
		version, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if version > latest {
			latest = version
		}
	}
	return latest, nil
}

func (p *Publisher) writeJSON(ctx context.Context, key string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return p.bucket.WriteAll(ctx, key, data, nil)
}

func (p *Publisher) readJSON(ctx context.Context, key string, target any) error {
	data, err := p.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("object %s does not exist", key)
		}
		return err
	}
	return json.Unmarshal(data, target)
}

func bundleName(bundle *Bundle) string {
	if bundle == nil {
		return ""
	}
	return bundle.Name
}
