package schema

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mongoscan/internal/storetest"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/locator"
	"mongoscan/pkg/redis"
	"mongoscan/pkg/rowconv"
)

func TestDefaultWidening(t *testing.T) {
	cases := []struct {
		a, b, want rowconv.Type
	}{
		{rowconv.TypeInt, rowconv.TypeInt, rowconv.TypeInt},
		{rowconv.TypeInt, rowconv.TypeNull, rowconv.TypeInt},
		{rowconv.TypeNull, rowconv.TypeDouble, rowconv.TypeDouble},
		{rowconv.TypeInt, rowconv.TypeDouble, rowconv.TypeDouble},
		{rowconv.TypeInt, rowconv.TypeBigInt, rowconv.TypeBigInt},
		{rowconv.TypeTinyInt, rowconv.TypeInt, rowconv.TypeInt},
		{rowconv.TypeBigInt, rowconv.TypeDecimal, rowconv.TypeDecimal},
		{rowconv.TypeDouble, rowconv.TypeDecimal, rowconv.TypeDecimal},
		{rowconv.TypeDateTime, rowconv.TypeTimestamp, rowconv.TypeDateTime},
		{rowconv.TypeVarchar, rowconv.TypeInt, rowconv.TypeVarchar},
		{rowconv.TypeJSON, rowconv.TypeInt, rowconv.TypeVarchar},
		{rowconv.TypeBlob, rowconv.TypeDateTime, rowconv.TypeVarchar},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultWidening(tc.a, tc.b), "%s + %s", tc.a, tc.b)
		assert.Equal(t, tc.want, DefaultWidening(tc.b, tc.a), "%s + %s", tc.b, tc.a)
	}

	assert.Equal(t, rowconv.TypeVarchar, StringWidening(rowconv.TypeInt, rowconv.TypeDouble))
	assert.Equal(t, rowconv.TypeInt, StringWidening(rowconv.TypeInt, rowconv.TypeNull))
}

func TestNormalizeFieldName(t *testing.T) {
	cases := map[string]string{
		"first_name":  "first_name",
		"first-name":  "first_name",
		"first name":  "first_name",
		"2fa":         "_2fa",
		"héllo":       "h_llo",
		"---":         "",
		"":            "",
		"a.b":         "a_b",
		"CamelCase42": "CamelCase42",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeFieldName(in), in)
	}

	long := NormalizeFieldName(string(make([]byte, 100)) + "x")
	assert.Len(t, long, MaxIdentifierLength)

	assert.True(t, IsValidIdentifier("_id"))
	assert.True(t, IsValidIdentifier("abc_1"))
	assert.False(t, IsValidIdentifier("1abc"))
	assert.False(t, IsValidIdentifier("a-b"))
	assert.False(t, IsValidIdentifier(""))
}

func TestBuildMergesObservations(t *testing.T) {
	docs := []bson.D{
		storetest.Doc("_id", primitive.NewObjectID(), "name", "Ada", "age", int32(36), "score", int32(1)),
		storetest.Doc("name", "Bob", "age", int64(40), "score", 2.5, "phone", nil),
		storetest.Doc("name", int32(7), "tags", bson.A{"x"}, "address", storetest.Doc("city", "Oslo"), "first-name", "B"),
	}

	fields := Build(docs, DefaultOptions())
	byColumn := map[string]FieldMapping{}
	var order []string
	for _, f := range fields {
		byColumn[f.Column] = f
		order = append(order, f.Column)
	}

	assert.Equal(t, []string{"name", "age", "score", "phone", "tags", "address", "first_name"}, order)
	assert.Equal(t, rowconv.TypeVarchar, byColumn["name"].Type)
	assert.Equal(t, rowconv.TypeBigInt, byColumn["age"].Type)
	assert.Equal(t, rowconv.TypeDouble, byColumn["score"].Type)
	assert.Equal(t, rowconv.TypeVarchar, byColumn["phone"].Type, "null-only fields default to text")
	assert.Equal(t, rowconv.TypeJSON, byColumn["tags"].Type)
	assert.Equal(t, rowconv.TypeJSON, byColumn["address"].Type)
	assert.Equal(t, "first-name", byColumn["first_name"].Path)
	assert.Equal(t, 3, byColumn["name"].Observed)
	for _, f := range fields {
		assert.True(t, f.Nullable)
		assert.Equal(t, rowconv.LengthHint(f.Type), f.Length)
	}
}

func TestBuildFlattensNestedAndCapsFields(t *testing.T) {
	docs := []bson.D{
		storetest.Doc("a", int32(1), "address", storetest.Doc("city", "Oslo", "geo", storetest.Doc("lat", 1.0))),
	}

	opts := DefaultOptions()
	opts.NestedDepth = 1
	fields := Build(docs, opts)
	require.Len(t, fields, 3)
	assert.Equal(t, FieldMapping{Column: "address_city", Path: "address.city", Type: rowconv.TypeVarchar, Nullable: true, Length: rowconv.VarcharLength, Observed: 1}, fields[1])
	assert.Equal(t, "address.geo", fields[2].Path)
	assert.Equal(t, rowconv.TypeJSON, fields[2].Type)

	opts.MaxFieldMappings = 2
	assert.Len(t, Build(docs, opts), 2)
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	a := []FieldMapping{{Column: "x", Path: "x", Type: rowconv.TypeInt}, {Column: "y", Path: "y", Type: rowconv.TypeVarchar}}
	b := []FieldMapping{a[1], a[0]}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 32)

	b[0].Type = rowconv.TypeJSON
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFieldValue(t *testing.T) {
	doc := storetest.Doc("address", storetest.Doc("city", "Oslo"), "n", nil)
	v, ok := FieldValue(doc, "address.city")
	assert.True(t, ok)
	assert.Equal(t, "Oslo", v)

	v, ok = FieldValue(doc, "n")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = FieldValue(doc, "address.zip")
	assert.False(t, ok)
}

type fixture struct {
	store   *storetest.Store
	manager *dbmanager.Manager
	loc     *locator.Locator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storetest.New()
	for i := 0; i < 5; i++ {
		store.Insert("shop", "customers", storetest.Doc("_id", int32(i), "name", "c", "age", int32(20+i)))
	}
	manager := dbmanager.NewManager(store, dbmanager.PoolOptions{})
	t.Cleanup(func() { _ = manager.Stop() })

	loc, err := locator.Parse("mongodb://localhost/shop/customers")
	require.NoError(t, err)
	return &fixture{store: store, manager: manager, loc: loc}
}

func TestRegistryCachesUntilExpiry(t *testing.T) {
	f := newFixture(t)
	opts := DefaultOptions()
	opts.TTL = 50 * time.Millisecond
	regs := NewRegistries(f.manager, nil, opts)
	reg := regs.For(f.loc)
	assert.Same(t, reg, regs.For(f.loc))
	ctx := context.Background()

	m, err := reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	assert.Equal(t, "shop.customers", m.Namespace())
	assert.Equal(t, 5, m.SampleSize)
	require.Len(t, m.Fields, 2)

	_, err = reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Counts().Samples)
	assert.InDelta(t, 0.5, reg.HitRatio(), 1e-9)
	assert.Equal(t, []string{"shop.customers"}, reg.CachedTables())

	time.Sleep(70 * time.Millisecond)
	assert.Empty(t, reg.CachedTables())
	assert.Equal(t, 1, reg.CacheSize())

	_, err = reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Counts().Samples)
}

func TestRegistryInvalidateAndClear(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistries(f.manager, nil, DefaultOptions()).For(f.loc)
	ctx := context.Background()

	_, err := reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	reg.Invalidate(ctx, "shop", "customers")
	assert.Equal(t, 0, reg.CacheSize())

	_, err = reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Counts().Samples)

	reg.Clear(ctx)
	assert.Equal(t, 0, reg.CacheSize())
	assert.Zero(t, reg.HitRatio())
}

func TestRegistryWithoutCacheAlwaysSamples(t *testing.T) {
	f := newFixture(t)
	opts := DefaultOptions()
	opts.CacheEnabled = false
	reg := NewRegistries(f.manager, nil, opts).For(f.loc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := reg.Infer(ctx, "shop", "customers")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.store.Counts().Samples)
	assert.Equal(t, 0, reg.CacheSize())
}

func TestRegisterFieldMappingSurvivesReinference(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistries(f.manager, nil, DefaultOptions()).For(f.loc)
	ctx := context.Background()

	_, err := reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)

	require.NoError(t, reg.RegisterFieldMapping("shop", "customers", FieldMapping{Column: "age", Path: "age", Type: rowconv.TypeDecimal}))
	require.NoError(t, reg.RegisterFieldMapping("shop", "customers", FieldMapping{Column: "city", Path: "address.city", Type: rowconv.TypeVarchar}))
	assert.Error(t, reg.RegisterFieldMapping("shop", "customers", FieldMapping{Column: "1bad"}))

	m, err := reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	age, ok := m.Field("age")
	require.True(t, ok)
	assert.Equal(t, rowconv.TypeDecimal, age.Type)
	assert.True(t, age.Manual)

	reg.Invalidate(ctx, "shop", "customers")
	m, err = reg.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	city, ok := m.Field("city")
	require.True(t, ok)
	assert.Equal(t, "address.city", city.Path)
}

func TestRegistrySamplingFailureIsClassified(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistries(f.manager, nil, DefaultOptions()).For(f.loc)

	f.store.SetPingErr(assert.AnError)
	_, err := reg.Infer(context.Background(), "shop", "customers")
	assert.Error(t, err)
}

func TestMappingColumns(t *testing.T) {
	m := &Mapping{Fields: []FieldMapping{{Column: "address_city", Path: "address.city", Type: rowconv.TypeVarchar}}}
	cols := m.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, rowconv.RoleIdentity, cols[0].Role)
	assert.Equal(t, "address.city", cols[1].FieldPath())
	assert.Equal(t, DocumentColumn, cols[2].Name)
	assert.Equal(t, rowconv.RoleDocument, cols[2].Role)
}

type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string)}
}

func (r *memRedis) Set(key string, data []byte, _ time.Duration, _ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = string(data)
	return nil
}

func (r *memRedis) Get(key string, _ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (r *memRedis) Del(key string, _ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func TestRedisStoreServesSecondProcess(t *testing.T) {
	f := newFixture(t)
	backend := newMemRedis()
	ctx := context.Background()

	first := NewRegistries(f.manager, NewRedisStore(backend), DefaultOptions()).For(f.loc)
	want, err := first.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	assert.Len(t, backend.data, 1)

	second := NewRegistries(f.manager, NewRedisStore(backend), DefaultOptions()).For(f.loc)
	got, err := second.Infer(ctx, "shop", "customers")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Counts().Samples)
	assert.Equal(t, want.Fields, got.Fields)
	assert.Equal(t, want.Fingerprint, got.Fingerprint)

	second.Invalidate(ctx, "shop", "customers")
	assert.Empty(t, backend.data)
}

func TestRedisStoreMissingKey(t *testing.T) {
	_, err := NewRedisStore(newMemRedis()).Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotStored)
}
