package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
)

// Record is one notification appended to the durable channel. Body holds the
// encoded wire message; decoding is the consumer's job so a poison body never
// breaks channel bookkeeping.
type Record struct {
	ID          string          `json:"id"`
	Channel     string          `json:"channel"`
	Offset      uint64          `json:"offset"`
	Body        json.RawMessage `json:"body"`
	PublishTime *time.Time      `json:"publishTime,omitempty"`

	couchbase.Cas `json:"-"`
}

func NewRecordsStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Record], error) {
	collection := bucket.Scope(scope).Collection("records")
	store, err := couchbase.NewCouchbase[Record](cluster, bucket, collection)
	if err != nil {
		return nil, err
	}

	return store, nil
}

func RecordKey(channel string, offset uint64) string {
	return fmt.Sprintf("record::%s::%d", channel, offset)
}
