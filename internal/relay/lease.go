package relay

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
)

// Lease is a temporary claim on a record while one worker routes it. A
// negatively-acknowledged record has its lease released (or expired) without
// a cursor commit, which is what makes redelivery possible.
type Lease struct {
	ID       string    `json:"id"`
	Sub      string    `json:"sub"`
	RecordID string    `json:"recordID"`
	Offset   uint64    `json:"offset"`
	Expires  time.Time `json:"expires"`

	couchbase.Cas `json:"-"`
}

func NewLeasesStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Lease], error) {
	collection := bucket.Scope(scope).Collection("leases")
	store, err := couchbase.NewCouchbase[Lease](cluster, bucket, collection)
	if err != nil {
		return nil, err
	}

	return store, nil
}

func LeaseKey(sub, recordID string) string {
	return fmt.Sprintf("lease::%s::%s", sub, recordID)
}
