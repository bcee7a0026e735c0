package vectorindex

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMetadata(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	it := &catalog.Item{
		TenantID: "t1", ExternalItemID: "42", Title: "Mug", Handle: "mug",
		Price: 12.5, Category: "Kitchen", URL: "https://shop/products/mug", ImageURL: "https://cdn/mug.jpg",
	}

	m := NewMetadata(it, "", at)
	assert.Equal(t, NoDescription, m.ImageDescription)
	assert.Equal(t, []string{}, m.Tags)
	assert.Equal(t, time.UTC, m.IndexedAt.Location())

	m = NewMetadata(it, "a white mug", at)
	assert.Equal(t, "a white mug", m.ImageDescription)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, k := range []string{"tenant_id", "external_item_id", "title", "handle", "price", "category",
		"tags", "url", "image_url", "image_description", "indexed_at"} {
		assert.Contains(t, decoded, k)
	}
}

func TestFactoryConfigured(t *testing.T) {
	f, err := NewFactory(BackendQdrant, nil, testLogger())
	require.NoError(t, err)

	assert.False(t, f.Configured(nil))
	assert.False(t, f.Configured(&catalog.TenantConfig{VectorIndexName: "products"}))
	assert.True(t, f.Configured(&catalog.TenantConfig{VectorIndexName: "products", VectorEnvironment: "localhost:6334"}))

	_, err = f.Open(context.Background(), &catalog.TenantConfig{})
	assert.ErrorIs(t, err, catalog.ErrNotConfigured)

	_, err = NewFactory(BackendPgvector, nil, testLogger())
	assert.Error(t, err)
	_, err = NewFactory("pinecone", nil, testLogger())
	assert.Error(t, err)
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("tenant-t1", "42")
	assert.Equal(t, a, PointID("tenant-t1", "42"))
	assert.NotEqual(t, a, PointID("tenant-t2", "42"))
	assert.NotEqual(t, a, PointID("tenant-t1", "43"))
}

func TestPayload(t *testing.T) {
	r := Record{
		ID:     "42",
		Values: []float32{0.1},
		Metadata: Metadata{
			TenantID: "t1", ExternalItemID: "42", Title: "Mug", Price: 9.99,
			Tags: []string{"kitchen", "gift"}, ImageDescription: NoDescription,
			IndexedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	p := payload("tenant-t1", r)

	assert.Equal(t, "tenant-t1", p["namespace"].GetStringValue())
	assert.Equal(t, "42", p["vector_id"].GetStringValue())
	assert.Equal(t, 9.99, p["price"].GetDoubleValue())
	assert.Equal(t, "2026-01-02T03:04:05Z", p["indexed_at"].GetStringValue())
	require.Len(t, p["tags"].GetListValue().GetValues(), 2)
	assert.Equal(t, "gift", p["tags"].GetListValue().GetValues()[1].GetStringValue())
	assert.NotContains(t, p, "handle")
	assert.NotContains(t, p, "url")
}

func TestParseEnvironment(t *testing.T) {
	cases := map[string]qdrant.Config{
		"localhost":                   {Host: "localhost", Port: defaultQdrantPort},
		"qdrant.internal:7000":        {Host: "qdrant.internal", Port: 7000},
		"https://xyz.cloud.qdrant.io": {Host: "xyz.cloud.qdrant.io", Port: defaultQdrantPort, UseTLS: true},
		"http://10.0.0.5:6334/":       {Host: "10.0.0.5", Port: 6334},
	}
	for in, want := range cases {
		got, err := parseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want.Host, got.Host, in)
		assert.Equal(t, want.Port, got.Port, in)
		assert.Equal(t, want.UseTLS, got.UseTLS, in)
	}

	_, err := parseEnvironment(" ")
	assert.Error(t, err)
	_, err = parseEnvironment("host:abc")
	assert.Error(t, err)
}
