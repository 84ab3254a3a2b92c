package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
)

// Lister is a typed view of the client for one entity type. It implements
// resolver.Lister[int64, V].
type Lister[V any] struct {
	client *Client
	typ    entity.Type
}

// NewLister creates a typed lister for typ.
func NewLister[V any](c *Client, typ entity.Type) *Lister[V] {
	return &Lister[V]{client: c, typ: typ}
}

// Type returns the entity type listed.
func (l *Lister[V]) Type() entity.Type {
	return l.typ
}

// ListByIDs lists ids and decodes every returned item into V.
func (l *Lister[V]) ListByIDs(ctx context.Context, ids []int64) ([]V, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = strconv.FormatInt(id, 10)
	}

	raw, err := l.client.ListByIDs(ctx, l.typ, strIDs)
	if err != nil {
		return nil, err
	}

	items := make([]V, 0, len(raw))
	for i, r := range raw {
		var v V
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, &APIError{
				StatusCode: 200,
				ErrorClass: ErrorClassDecode,
				Message:    fmt.Sprintf("decode item %d", i),
				Err:        err,
				Type:       l.typ,
				IDs:        len(ids),
			}
		}
		items = append(items, v)
	}
	return items, nil
}
