package pathreg

import "fmt"

/*
Responsibilities
- Maintain the bijective canonicalURL <-> localPath mapping for every
  page and asset the engine fetches
- Derive a sanitised, collision-free local path from a URL the first
  time it is seen
- Perform no I/O: the registry only ever manipulates strings

Uses the same content-addressed bookkeeping idea as a parallel
writtenAssets/hashToPath map keyed by content hash, with blake3-backed
filename hashing, generalised here into a full canonical-URL-keyed
bijection with collision-suffix resolution instead of a single flat
asset directory.
*/

const (
	maxSegmentLength     = 200
	collisionSuffixLimit = 1000
)

// Error reports a malformed URL passed to Register or Lookup.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pathreg: %s", e.Message)
}
