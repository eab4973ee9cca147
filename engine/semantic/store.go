package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores item vectors into Qdrant. Called by the ingest pipeline
// and by reindex.
func (v *VectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.PointID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"item_id":   {Kind: &pb.Value_IntegerValue{IntegerValue: r.ItemID}},
				"source_id": {Kind: &pb.Value_IntegerValue{IntegerValue: r.SourceID}},
				"title":     {Kind: &pb.Value_StringValue{StringValue: r.Title}},
				"url":       {Kind: &pb.Value_StringValue{StringValue: r.URL}},
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByItem removes all points for one content item. Used before
// reindexing so stale vectors never survive an edit.
func (v *VectorStore) DeleteByItem(ctx context.Context, itemID int64) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						intMatch("item_id", itemID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by item %d: %w", itemID, err)
	}
	return nil
}

// Search performs k-NN similarity search over all sources.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]Hit, error) {
	return v.SearchFiltered(ctx, embedding, topK, 0)
}

// SearchFiltered performs similarity search limited to one source when
// sourceID is non-zero.
func (v *VectorStore) SearchFiltered(ctx context.Context, embedding []float32, topK int, sourceID int64) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if sourceID != 0 {
		req.Filter = &pb.Filter{Must: []*pb.Condition{intMatch("source_id", sourceID)}}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		h := Hit{
			PointID: r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Meta:    make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "item_id":
				h.ItemID = val.GetIntegerValue()
			case "source_id":
				h.SourceID = val.GetIntegerValue()
			case "title":
				h.Title = val.GetStringValue()
			case "url":
				h.URL = val.GetStringValue()
			default:
				h.Meta[k] = val.GetStringValue()
			}
		}
		hits[i] = h
	}
	return hits, nil
}

func intMatch(key string, value int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Integer{Integer: value},
				},
			},
		},
	}
}
