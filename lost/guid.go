package lost

import (
	"encoding/base64"

	"github.com/pborman/uuid"
)

// NewGUID returns a randomly generated identifier, a base64 (URL-safe,
// unpadded) rendering of a version-4 UUID, matching
// original_source/lost/guid.py's GUID.__str__ representation. Used as the
// shape uri the loader assigns when a feature supplies none, and for opaque
// serviceBoundaryReference keys.
func NewGUID() string {
	u := uuid.NewRandom()
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(u)
}
