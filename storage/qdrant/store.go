// Package qdrant implements storage.VectorStore on a remote Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Payload field names
const (
	fieldKey        = "key"
	fieldDocumentID = "document_id"
	fieldIndex      = "index"
	fieldText       = "text"
	fieldOverlap    = "overlap"
	fieldPage       = "page"
	fieldOffset     = "offset"
)

// pointNamespace seeds the deterministic point UUIDs derived from chunk keys.
var pointNamespace = uuid.MustParse("6f1c54a2-93d4-4c1e-8a0e-5b8c2f0d7e31")

// Store implements storage.VectorStore for Qdrant.
// Collections are created with cosine distance on first upsert.
type Store struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	logger      *slog.Logger

	mu   sync.Mutex
	dims map[string]int
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// New creates a Store for the Qdrant gRPC endpoint at addr (host:port).
// The connection is established lazily on the first call.
func New(addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("qdrant address is required")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}

	s := &Store{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		logger:      slog.Default(),
		dims:        make(map[string]int),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			conn.Close()
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "qdrant", "addr", addr)
	return s, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Upsert writes chunks as points with deterministic ids, waiting for the write to apply.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("%w: chunk %d in collection %s", storage.ErrEmptyVector, c.Chunk.Key, collection)
		}
	}
	dim, err := s.ensureCollection(ctx, collection, len(chunks[0].Vector))
	if err != nil {
		return err
	}

	points := make([]*qdrantclient.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, got %d",
				core.ErrDimensionMismatch, collection, dim, len(c.Vector))
		}
		points = append(points, &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: PointID(c.Chunk.Key)},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: c.Vector},
				},
			},
			Payload: payloadFor(c.Chunk),
		})
	}

	wait := true
	_, err = s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return mapError(err, collection)
	}
	s.logger.Debug("upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search returns the nearest points with their payloads decoded into chunks.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int) ([]core.ScoredChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	resp, err := s.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, mapError(err, collection)
	}

	results := make([]core.ScoredChunk, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		results = append(results, core.ScoredChunk{
			Chunk: chunkFromPayload(point.GetPayload()),
			Score: point.GetScore(),
		})
	}
	return results, nil
}

// Count returns the exact number of points in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &qdrantclient.CountPoints{
		CollectionName: collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, mapError(err, collection)
	}
	return int(resp.GetResult().GetCount()), nil
}

// ensureCollection returns the collection's vector size, creating the collection if needed.
func (s *Store) ensureCollection(ctx context.Context, collection string, dim int) (int, error) {
	s.mu.Lock()
	known, ok := s.dims[collection]
	s.mu.Unlock()
	if ok {
		return known, nil
	}

	info, err := s.collections.Get(ctx, &qdrantclient.GetCollectionInfoRequest{CollectionName: collection})
	switch {
	case err == nil:
		size := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if size > 0 {
			dim = size
		}
	case status.Code(err) == codes.NotFound:
		_, err = s.collections.Create(ctx, &qdrantclient.CreateCollection{
			CollectionName: collection,
			VectorsConfig: &qdrantclient.VectorsConfig{
				Config: &qdrantclient.VectorsConfig_Params{
					Params: &qdrantclient.VectorParams{
						Size:     uint64(dim),
						Distance: qdrantclient.Distance_Cosine,
					},
				},
			},
		})
		// A concurrent creator may have won the race.
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return 0, mapError(err, collection)
		}
		s.logger.Info("created collection", "collection", collection, "dimension", dim)
	default:
		return 0, mapError(err, collection)
	}

	s.mu.Lock()
	s.dims[collection] = dim
	s.mu.Unlock()
	return dim, nil
}

// PointID derives the deterministic point UUID for a chunk key.
func PointID(key core.ID) string {
	return uuid.NewSHA1(pointNamespace, []byte(key.Hex())).String()
}

func payloadFor(c core.DocumentChunk) map[string]*qdrantclient.Value {
	return map[string]*qdrantclient.Value{
		fieldKey:        stringValue(c.Key.Hex()),
		fieldDocumentID: stringValue(c.DocumentID),
		fieldIndex:      intValue(c.Index),
		fieldText:       stringValue(c.Text),
		fieldOverlap:    intValue(c.Overlap),
		fieldPage:       intValue(c.Page),
		fieldOffset:     intValue(c.Offset),
	}
}

func chunkFromPayload(p map[string]*qdrantclient.Value) core.DocumentChunk {
	var key uint64
	if v, ok := p[fieldKey]; ok {
		key, _ = strconv.ParseUint(v.GetStringValue(), 16, 64)
	}
	return core.DocumentChunk{
		Key:        core.ID(key),
		DocumentID: p[fieldDocumentID].GetStringValue(),
		Index:      int(p[fieldIndex].GetIntegerValue()),
		Text:       p[fieldText].GetStringValue(),
		Overlap:    int(p[fieldOverlap].GetIntegerValue()),
		Page:       int(p[fieldPage].GetIntegerValue()),
		Offset:     int(p[fieldOffset].GetIntegerValue()),
	}
}

func stringValue(s string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: s}}
}

func intValue(i int) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_IntegerValue{IntegerValue: int64(i)}}
}

// mapError translates gRPC status codes into domain errors.
func mapError(err error, collection string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", core.ErrCollectionNotFound, collection)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return err
}
