package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prod-assistant/pkg/config"

	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

const (
	astraAPIPath        = "/api/json/v1"
	astraInsertBatch    = 20
	astraDuplicateError = "DOCUMENT_ALREADY_EXISTS"
)

// AstraStore talks to an Astra DB vector collection through the Data API.
// Documents are stored as {"_id", "content", "metadata", "$vector"}.
type AstraStore struct {
	endpoint   string
	token      string
	keyspace   string
	collection string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAstraStore(cfg *config.AstraDBConfig, logger *zap.Logger) (*AstraStore, error) {
	if cfg.APIEndpoint == "" {
		return nil, fmt.Errorf("astra db api endpoint is empty")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("astra db collection name is empty")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &AstraStore{
		endpoint:   strings.TrimRight(cfg.APIEndpoint, "/"),
		token:      cfg.ApplicationToken,
		keyspace:   cfg.Keyspace,
		collection: cfg.CollectionName,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type astraDocument struct {
	ID         string         `json:"_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Vector     []float32      `json:"$vector,omitempty"`
	Similarity *float32       `json:"$similarity,omitempty"`
}

type astraError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

type astraResponse struct {
	Data struct {
		Documents []astraDocument `json:"documents"`
	} `json:"data"`
	Status struct {
		InsertedIDs []string `json:"insertedIds"`
	} `json:"status"`
	Errors []astraError `json:"errors"`
}

// EnsureCollection creates the vector collection if it does not exist yet.
func (s *AstraStore) EnsureCollection(ctx context.Context, dimension int) error {
	body := map[string]any{
		"createCollection": map[string]any{
			"name": s.collection,
			"options": map[string]any{
				"vector": map[string]any{
					"dimension": dimension,
					"metric":    "cosine",
				},
			},
		},
	}

	resp, err := s.post(ctx, s.keyspaceURL(), body)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("failed to create collection: %s", resp.Errors[0].Message)
	}

	s.logger.Info("Astra collection ready",
		zap.String("collection", s.collection),
		zap.Int("dimension", dimension),
	)
	return nil
}

func (s *AstraStore) SearchByVector(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	body := map[string]any{
		"find": map[string]any{
			"sort":       map[string]any{"$vector": vector},
			"projection": map[string]any{"content": 1, "metadata": 1, "$vector": 1},
			"options": map[string]any{
				"limit":             k,
				"includeSimilarity": true,
			},
		},
	}

	resp, err := s.post(ctx, s.collectionURL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("failed to search collection: %s", resp.Errors[0].Message)
	}

	candidates := make([]Candidate, 0, len(resp.Data.Documents))
	for _, d := range resp.Data.Documents {
		c := Candidate{
			Document: schema.Document{
				PageContent: d.Content,
				Metadata:    d.Metadata,
			},
			Vector: d.Vector,
		}
		if d.Similarity != nil {
			c.Similarity = *d.Similarity
			c.Document.Score = *d.Similarity
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// AddDocuments inserts new ids with insertMany and replaces the ones the
// collection already holds, so a re-ingested product overwrites its old row.
func (s *AstraStore) AddDocuments(ctx context.Context, docs []schema.Document, vectors [][]float32) ([]string, error) {
	if err := checkLengths(docs, vectors); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = DocumentID(s.collection, doc)
	}

	for start := 0; start < len(docs); start += astraInsertBatch {
		end := min(start+astraInsertBatch, len(docs))

		// the last copy of an id in a batch wins
		last := make(map[string]int, end-start)
		for i := start; i < end; i++ {
			last[ids[i]] = i
		}

		batch := make([]astraDocument, 0, len(last))
		for i := start; i < end; i++ {
			if last[ids[i]] != i {
				continue
			}
			batch = append(batch, astraDocument{
				ID:       ids[i],
				Content:  docs[i].PageContent,
				Metadata: docs[i].Metadata,
				Vector:   vectors[i],
			})
		}

		existing, err := s.insertMany(ctx, batch)
		if err != nil {
			return nil, err
		}

		for _, doc := range existing {
			if err := s.replace(ctx, doc); err != nil {
				return nil, err
			}
		}
	}

	return ids, nil
}

// insertMany returns the documents rejected because their id already exists.
func (s *AstraStore) insertMany(ctx context.Context, batch []astraDocument) ([]astraDocument, error) {
	body := map[string]any{
		"insertMany": map[string]any{
			"documents": batch,
			"options":   map[string]any{"ordered": false},
		},
	}

	resp, err := s.post(ctx, s.collectionURL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to insert documents: %w", err)
	}

	duplicates := false
	for _, e := range resp.Errors {
		if e.ErrorCode != astraDuplicateError {
			return nil, fmt.Errorf("failed to insert documents: %s", e.Message)
		}
		duplicates = true
	}
	if !duplicates {
		return nil, nil
	}

	inserted := make(map[string]bool, len(resp.Status.InsertedIDs))
	for _, id := range resp.Status.InsertedIDs {
		inserted[id] = true
	}

	var existing []astraDocument
	for _, doc := range batch {
		if !inserted[doc.ID] {
			existing = append(existing, doc)
		}
	}
	return existing, nil
}

func (s *AstraStore) replace(ctx context.Context, doc astraDocument) error {
	body := map[string]any{
		"findOneAndReplace": map[string]any{
			"filter":      map[string]any{"_id": doc.ID},
			"replacement": doc,
			"options":     map[string]any{"upsert": true},
		},
	}

	resp, err := s.post(ctx, s.collectionURL(), body)
	if err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("failed to replace document: %s", resp.Errors[0].Message)
	}

	s.logger.Debug("Document replaced", zap.String("id", doc.ID))
	return nil
}

func (s *AstraStore) keyspaceURL() string {
	return s.endpoint + astraAPIPath + "/" + s.keyspace
}

func (s *AstraStore) collectionURL() string {
	return s.keyspaceURL() + "/" + s.collection
}

func (s *AstraStore) post(ctx context.Context, url string, body any) (*astraResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Token", s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("data api request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out astraResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}

var _ Store = (*AstraStore)(nil)
