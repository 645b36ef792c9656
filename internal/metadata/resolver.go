// Package metadata resolves the off-chain metadata URIs carried by bounty
// and assertion events: fetch (or parse inline), validate against a fixed
// JSON Schema, and memoize the result for a short window.
package metadata

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ethereum/go-ethereum/log"
)

const (
	cacheSize = 15
	cacheTTL  = 30 * time.Second
)

// ArtifactFetcher retrieves raw bytes for a uri the resolver recognizes as
// an artifact-service reference, as opposed to an inline metadata blob.
type ArtifactFetcher interface {
	CheckURI(uri string) bool
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Resolver implements codec.MetadataResolver. It never returns an error:
// any fetch, parse, or schema failure degrades to the original uri string,
// matching the original system's substitute_metadata behavior.
type Resolver struct {
	artifacts ArtifactFetcher
	schema    *gojsonschema.Schema
	cache     *lru.LRU[string, interface{}]
}

// New constructs a Resolver that validates resolved metadata against
// schemaJSON. A nil artifacts fetcher is valid: only inline (non-artifact)
// URIs will resolve, everything else degrades to the bare string.
func New(artifacts ArtifactFetcher, schemaJSON []byte) (*Resolver, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, err
	}
	return &Resolver{
		artifacts: artifacts,
		schema:    schema,
		cache:     lru.NewLRU[string, interface{}](cacheSize, nil, cacheTTL),
	}, nil
}

// Resolve fetches and validates the metadata uri points to. On any
// failure along the way it logs and returns uri unchanged.
func (r *Resolver) Resolve(ctx context.Context, uri string) interface{} {
	if uri == "" {
		return uri
	}
	if v, ok := r.cache.Get(uri); ok {
		return v
	}

	content, ok := r.fetch(ctx, uri)
	if !ok {
		return uri
	}

	var parsed interface{}
	if err := json.Unmarshal(content, &parsed); err != nil {
		log.Warn("metadata retrieved does not parse as json", "uri", uri, "err", err)
		return uri
	}

	result, err := r.schema.Validate(gojsonschema.NewGoLoader(parsed))
	if err != nil || !result.Valid() {
		log.Warn("metadata retrieved does not match schema", "uri", uri)
		return uri
	}

	r.cache.Add(uri, parsed)
	return parsed
}

func (r *Resolver) fetch(ctx context.Context, uri string) ([]byte, bool) {
	if r.artifacts != nil && r.artifacts.CheckURI(uri) {
		content, err := r.artifacts.Get(ctx, uri)
		if err != nil {
			log.Warn("error fetching metadata artifact", "uri", uri, "err", err)
			return nil, false
		}
		return content, true
	}
	// Not an artifact reference: treat uri itself as an inline metadata blob.
	return []byte(uri), true
}
