package relay

import (
	"fmt"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
)

// Cursor tracks how far a subscription has progressed through a channel.
type Cursor struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Sub     string `json:"sub"`
	Offset  uint64 `json:"offset"`

	couchbase.Cas `json:"-"`
}

func NewCursorsStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Cursor], error) {
	collection := bucket.Scope(scope).Collection("cursors")
	store, err := couchbase.NewCouchbase[Cursor](cluster, bucket, collection)
	if err != nil {
		return nil, err
	}

	return store, nil
}

func CursorKey(channel, sub string) string {
	return fmt.Sprintf("cursor::%s::%s", channel, sub)
}
