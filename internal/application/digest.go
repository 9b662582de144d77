package application

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// ResultDigest returns a stable fingerprint of a relation result. Two runs
// over the same inputs produce the same digest; diagnostics are not hashed.
func ResultDigest(relation domain.Relation, r *domain.RelationResult) string {
	d := xxhash.New()
	_, _ = d.WriteString(relation.String())

	var buf [8]byte
	for _, set := range []domain.FeatureIDSet{r.Matched, r.InvalidTarget, r.InvalidReference} {
		binary.LittleEndian.PutUint64(buf[:], uint64(set.Len()))
		_, _ = d.Write(buf[:])
		for _, id := range set.Sorted() {
			binary.LittleEndian.PutUint64(buf[:], uint64(id))
			_, _ = d.Write(buf[:])
		}
	}

	return fmt.Sprintf("%016x", d.Sum64())
}
