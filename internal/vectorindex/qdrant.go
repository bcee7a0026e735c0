package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/MikeSquared-Agency/curator/internal/embeddings"
)

const defaultQdrantPort = 6334

// pointNamespace seeds deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c2a8e-3b4d-5e6f-8a9b-0c1d2e3f4a5b")

// PointID maps a namespace and vector id onto a stable Qdrant point UUID.
func PointID(namespace, vectorID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+vectorID)).String()
}

// QdrantIndex writes vectors into one Qdrant collection. The namespace is a
// payload field so one collection can serve many tenants.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// Name returns the backend name.
func (q *QdrantIndex) Name() string { return BackendQdrant }

// Upsert creates the collection on first use and writes the points, waiting
// for the write to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(namespace, r.ID)),
			Vectors: qdrant.NewVectors(r.Values...),
			Payload: payload(namespace, r),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting points to collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}
	q.logger.Info("creating qdrant collection", "collection", q.collection, "size", embeddings.Dimensions)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(embeddings.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("creating collection %s: %w", q.collection, err)
	}
	return nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

// payload converts typed metadata into Qdrant payload values.
func payload(namespace string, r Record) map[string]*qdrant.Value {
	m := r.Metadata
	tags := make([]*qdrant.Value, len(m.Tags))
	for i, t := range m.Tags {
		tags[i] = stringValue(t)
	}
	p := map[string]*qdrant.Value{
		"namespace":         stringValue(namespace),
		"vector_id":         stringValue(r.ID),
		"tenant_id":         stringValue(m.TenantID),
		"external_item_id":  stringValue(m.ExternalItemID),
		"title":             stringValue(m.Title),
		"price":             {Kind: &qdrant.Value_DoubleValue{DoubleValue: m.Price}},
		"tags":              {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: tags}}},
		"image_description": stringValue(m.ImageDescription),
		"indexed_at":        stringValue(m.IndexedAt.Format("2006-01-02T15:04:05Z07:00")),
	}
	optional := map[string]string{
		"handle":    m.Handle,
		"category":  m.Category,
		"url":       m.URL,
		"image_url": m.ImageURL,
	}
	for k, v := range optional {
		if v != "" {
			p[k] = stringValue(v)
		}
	}
	return p
}

// qdrantPool shares one client per endpoint and API key.
type qdrantPool struct {
	mu      sync.Mutex
	clients map[string]*qdrant.Client
}

func newQdrantPool() *qdrantPool {
	return &qdrantPool{clients: map[string]*qdrant.Client{}}
}

func (p *qdrantPool) get(environment, apiKey string) (*qdrant.Client, error) {
	cfg, err := parseEnvironment(environment)
	if err != nil {
		return nil, err
	}
	cfg.APIKey = apiKey

	key := environment + "|" + apiKey
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant %s: %w", cfg.Host, err)
	}
	p.clients[key] = c
	return c, nil
}

func (p *qdrantPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for k, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, k)
	}
	return firstErr
}

// parseEnvironment reads "host", "host:port", or a URL. An https scheme
// enables TLS.
func parseEnvironment(env string) (*qdrant.Config, error) {
	env = strings.TrimSpace(env)
	useTLS := false
	switch {
	case strings.HasPrefix(env, "https://"):
		useTLS = true
		env = strings.TrimPrefix(env, "https://")
	case strings.HasPrefix(env, "http://"):
		env = strings.TrimPrefix(env, "http://")
	}
	env = strings.TrimRight(env, "/")
	if env == "" {
		return nil, fmt.Errorf("empty qdrant environment")
	}

	host, portStr, err := net.SplitHostPort(env)
	if err != nil {
		return &qdrant.Config{Host: env, Port: defaultQdrantPort, UseTLS: useTLS}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}, nil
}
