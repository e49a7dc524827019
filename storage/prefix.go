package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// prefixedStore legt alle Schlüssel unterhalb eines Präfixes ab. Nach außen
// sind die Schlüssel präfixfrei, List sieht nur Objekte unter dem Präfix.
type prefixedStore struct {
	inner  ObjectStore
	prefix string
}

// WithKeyPrefix beschränkt store auf den Bereich unter prefix.
// Ein leeres Präfix gibt store unverändert zurück.
func WithKeyPrefix(store ObjectStore, prefix string) ObjectStore {
	prefix = NormalizePrefix(prefix)
	if prefix == "" {
		return store
	}
	return &prefixedStore{inner: store, prefix: prefix}
}

// NormalizePrefix entfernt führende Slashes und sorgt für genau einen abschließenden.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (p *prefixedStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return p.inner.Put(ctx, p.prefix+key, r, size, contentType)
}

func (p *prefixedStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrObjectNotFound
	}
	return p.inner.Open(ctx, p.prefix+key)
}

func (p *prefixedStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrObjectNotFound
	}
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixedStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := p.inner.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		key, ok := strings.CutPrefix(obj.Key, p.prefix)
		// Nur direkte Kinder, tiefer verschachtelte Schlüssel gehören nicht zu uns.
		if !ok || !validKey(key) {
			continue
		}
		obj.Key = key
		out = append(out, obj)
	}
	return out, nil
}
