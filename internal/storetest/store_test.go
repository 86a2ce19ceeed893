package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/locator"
)

func TestMatchFilter(t *testing.T) {
	doc := Doc(
		"name", "Ada",
		"age", int32(36),
		"tags", bson.A{"math", "eng"},
		"address", Doc("city", "London"),
		"phone", nil,
	)

	cases := []struct {
		name   string
		filter bson.D
		want   bool
	}{
		{"empty", bson.D{}, true},
		{"equality", Doc("name", "Ada"), true},
		{"numeric widths", Doc("age", int64(36)), true},
		{"type mismatch", Doc("age", "36"), false},
		{"array element", Doc("tags", "eng"), true},
		{"dotted path", Doc("address.city", "London"), true},
		{"null matches null", Doc("phone", nil), true},
		{"null matches absent", Doc("fax", nil), true},
		{"ne null", Doc("phone", Doc("$ne", nil)), false},
		{"nin excludes null", Doc("phone", Doc("$nin", bson.A{"x", nil})), false},
		{"nin", Doc("name", Doc("$nin", bson.A{"Bob", nil})), true},
		{"in", Doc("name", Doc("$in", bson.A{"Bob", "Ada"})), true},
		{"range", Doc("age", Doc("$gte", int64(30), "$lt", int64(40))), true},
		{"range miss", Doc("age", Doc("$gt", int64(36))), false},
		{"and", Doc("$and", bson.A{Doc("name", "Ada"), Doc("age", int64(1))}), false},
		{"or", Doc("$or", bson.A{Doc("name", "Bob"), Doc("age", int64(36))}), true},
		{"unknown operator", Doc("name", Doc("$regex", "A")), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchFilter(tc.filter, doc))
		})
	}
}

func TestMatchFilterFollowsServerArrayRules(t *testing.T) {
	doc := Doc(
		"tags", bson.A{nil, "x"},
		"items", bson.A{Doc("sku", "A"), Doc("qty", int32(1)), Doc("sku", "C")},
		"empty", bson.A{},
		"size", int32(4),
	)

	cases := []struct {
		name   string
		filter bson.D
		want   bool
	}{
		{"null matches array holding null", Doc("tags", nil), true},
		{"ne null rejects array holding null", Doc("tags", Doc("$ne", nil)), false},
		{"element of mixed array", Doc("tags", "x"), true},
		{"dotted path into array", Doc("items.sku", "C"), true},
		{"dotted path miss", Doc("items.sku", "B"), false},
		{"null matches element without field", Doc("items.sku", nil), true},
		{"range over fanned out values", Doc("items.sku", Doc("$gt", "B")), true},
		{"nin sees every element", Doc("items.sku", Doc("$nin", bson.A{"A", nil})), false},
		{"positional segment", Doc("items.0.sku", "A"), true},
		{"positional segment miss", Doc("items.2.sku", "A"), false},
		{"empty array is not null", Doc("empty", nil), false},
		{"path through empty array is absent", Doc("empty.sku", nil), true},
		{"path through scalar is absent", Doc("size.unit", nil), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchFilter(tc.filter, doc))
		})
	}
}

func TestFindAppliesOptionsAndTracksCursors(t *testing.T) {
	store := New()
	store.Insert("shop", "orders",
		Doc("_id", int32(3), "total", 30.0),
		Doc("_id", int32(1), "total", 10.0),
		Doc("_id", int32(2), "total", 20.0),
	)

	loc, err := locator.Parse("mongodb://localhost/shop/orders")
	require.NoError(t, err)
	ctx := context.Background()

	client, err := store.Dial(ctx, loc)
	require.NoError(t, err)
	coll := client.Collection("shop", "orders")

	cur, err := coll.Find(ctx, nil, dbmanager.FindOptions{
		Sort:       Doc("total", -1),
		Limit:      2,
		Projection: Doc("_id", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Counts().OpenCursors)

	var got []bson.D
	for cur.Next(ctx) {
		var doc bson.D
		require.NoError(t, cur.Decode(&doc))
		got = append(got, doc)
	}
	require.NoError(t, cur.Close(ctx))
	require.NoError(t, cur.Close(ctx))

	assert.Equal(t, []bson.D{Doc("_id", int32(3)), Doc("_id", int32(2))}, got)
	assert.Equal(t, 0, store.Counts().OpenCursors)

	n, err := coll.CountDocuments(ctx, Doc("total", Doc("$gt", 15.0)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	est, err := coll.EstimatedDocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), est)

	exists, err := client.CollectionExists(ctx, "shop", "orders")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = client.CollectionExists(ctx, "shop", "nowhere")
	require.NoError(t, err)
	assert.False(t, exists)
}
