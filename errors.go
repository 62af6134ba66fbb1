package staycache

import "github.com/stayfinder/go-stay-cache/model"

// Error taxonomy. InvalidCategory is a programmer error surfaced at key
// construction; loader timeouts may still resolve to stale fallback data.
var (
	ErrInvalidCategory = model.ErrInvalidCategory
	ErrLoaderTimeout   = model.ErrLoaderTimeout
)
