package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"prod-assistant/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

type recordedRequest struct {
	path  string
	token string
	body  map[string]any
}

func newAstraServer(t *testing.T, reply string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		requests = append(requests, recordedRequest{path: r.URL.Path, token: r.Header.Get("Token"), body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func newTestAstraStore(t *testing.T, endpoint string) *AstraStore {
	t.Helper()

	store, err := NewAstraStore(&config.AstraDBConfig{
		APIEndpoint:      endpoint + "/",
		ApplicationToken: "AstraCS:token",
		Keyspace:         "default_keyspace",
		CollectionName:   "ecommercedata",
	}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestAstraStore_SearchByVector(t *testing.T) {
	srv, requests := newAstraServer(t, `{"data":{"documents":[
		{"_id":"1","content":"Great phone","metadata":{"product_title":"Phone A"},"$vector":[0.1,0.2],"$similarity":0.93},
		{"_id":"2","content":"Decent phone","metadata":{"product_title":"Phone B"},"$vector":[0.3,0.4],"$similarity":0.71}
	]}}`)
	store := newTestAstraStore(t, srv.URL)

	candidates, err := store.SearchByVector(context.Background(), []float32{0.5, 0.5}, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "Great phone", candidates[0].Document.PageContent)
	assert.Equal(t, "Phone A", candidates[0].Document.Metadata["product_title"])
	assert.InDelta(t, 0.93, candidates[0].Similarity, 1e-6)
	assert.Equal(t, []float32{0.1, 0.2}, candidates[0].Vector)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/api/json/v1/default_keyspace/ecommercedata", req.path)
	assert.Equal(t, "AstraCS:token", req.token)

	find := req.body["find"].(map[string]any)
	options := find["options"].(map[string]any)
	assert.EqualValues(t, 2, options["limit"])
	assert.Equal(t, true, options["includeSimilarity"])
}

func TestAstraStore_SearchByVector_DataAPIError(t *testing.T) {
	srv, _ := newAstraServer(t, `{"errors":[{"message":"collection not found","errorCode":"COLLECTION_NOT_EXIST"}]}`)
	store := newTestAstraStore(t, srv.URL)

	_, err := store.SearchByVector(context.Background(), []float32{1}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection not found")
}

func TestAstraStore_SearchByVector_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer srv.Close()
	store := newTestAstraStore(t, srv.URL)

	_, err := store.SearchByVector(context.Background(), []float32{1}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// fakeDataAPI keeps documents by _id and rejects inserts of existing ids the
// way the Data API does.
type fakeDataAPI struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	commands []string
}

func newFakeDataAPI(t *testing.T) (*httptest.Server, *fakeDataAPI) {
	t.Helper()

	api := &fakeDataAPI{docs: make(map[string]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	return srv, api
}

func (a *fakeDataAPI) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	reply := map[string]any{}
	for command, args := range body {
		a.commands = append(a.commands, command)

		switch command {
		case "insertMany":
			inserted := []string{}
			var errs []map[string]any
			for _, raw := range args["documents"].([]any) {
				doc := raw.(map[string]any)
				id := doc["_id"].(string)
				if _, ok := a.docs[id]; ok {
					errs = append(errs, map[string]any{"message": "Document already exists with the given _id", "errorCode": "DOCUMENT_ALREADY_EXISTS"})
					continue
				}
				a.docs[id] = doc
				inserted = append(inserted, id)
			}
			reply["status"] = map[string]any{"insertedIds": inserted}
			if len(errs) > 0 {
				reply["errors"] = errs
			}

		case "findOneAndReplace":
			id := args["filter"].(map[string]any)["_id"].(string)
			a.docs[id] = args["replacement"].(map[string]any)
			reply["status"] = map[string]any{"matchedCount": 1, "modifiedCount": 1}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

func (a *fakeDataAPI) content(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, _ := a.docs[id]["content"].(string)
	return c
}

func TestAstraStore_AddDocuments_Batches(t *testing.T) {
	srv, api := newFakeDataAPI(t)
	store := newTestAstraStore(t, srv.URL)

	docs := make([]schema.Document, 25)
	vectors := make([][]float32, 25)
	for i := range docs {
		docs[i] = schema.Document{PageContent: "review", Metadata: map[string]any{}}
		vectors[i] = []float32{float32(i)}
	}

	ids, err := store.AddDocuments(context.Background(), docs, vectors)
	require.NoError(t, err)
	assert.Len(t, ids, 25)
	assert.Equal(t, []string{"insertMany", "insertMany"}, api.commands)
	assert.Len(t, api.docs, 25)
}

func TestAstraStore_AddDocuments_ReingestReplacesContent(t *testing.T) {
	srv, api := newFakeDataAPI(t)
	store := newTestAstraStore(t, srv.URL)
	ctx := context.Background()

	meta := map[string]any{"product_id": "itm1"}

	first, err := store.AddDocuments(ctx, []schema.Document{{PageContent: "old reviews", Metadata: meta}}, [][]float32{{1, 0}})
	require.NoError(t, err)

	second, err := store.AddDocuments(ctx, []schema.Document{
		{PageContent: "new reviews", Metadata: meta},
		{PageContent: "other product", Metadata: map[string]any{"product_id": "itm2"}},
	}, [][]float32{{0, 1}, {1, 1}})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[0])
	assert.Equal(t, "new reviews", api.content(first[0]))
	assert.Equal(t, "other product", api.content(second[1]))
	assert.Equal(t, []string{"insertMany", "insertMany", "findOneAndReplace"}, api.commands)
}

func TestAstraStore_AddDocuments_LastCopyInBatchWins(t *testing.T) {
	srv, api := newFakeDataAPI(t)
	store := newTestAstraStore(t, srv.URL)

	meta := map[string]any{"product_id": "itm1"}
	ids, err := store.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "first", Metadata: meta},
		{PageContent: "second", Metadata: meta},
	}, [][]float32{{1}, {2}})
	require.NoError(t, err)

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, "second", api.content(ids[0]))
}

func TestAstraStore_AddDocuments_OtherErrorsFail(t *testing.T) {
	srv, _ := newAstraServer(t, `{"errors":[{"message":"vector size mismatch","errorCode":"INVALID_VECTOR"}]}`)
	store := newTestAstraStore(t, srv.URL)

	_, err := store.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}}, [][]float32{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector size mismatch")
}

func TestAstraStore_AddDocuments_LengthMismatch(t *testing.T) {
	store := newTestAstraStore(t, "http://127.0.0.1:1")

	_, err := store.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}}, nil)
	assert.Error(t, err)
}

func TestNewAstraStore_Validation(t *testing.T) {
	_, err := NewAstraStore(&config.AstraDBConfig{CollectionName: "c"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewAstraStore(&config.AstraDBConfig{APIEndpoint: "https://x"}, zap.NewNop())
	assert.Error(t, err)
}

func TestDocumentID(t *testing.T) {
	doc := schema.Document{Metadata: map[string]any{"product_id": "itm123"}}

	assert.Equal(t, DocumentID("c", doc), DocumentID("c", doc))
	assert.NotEqual(t, DocumentID("c", doc), DocumentID("other", doc))

	anon := schema.Document{Metadata: map[string]any{"product_id": "N/A"}}
	assert.NotEqual(t, DocumentID("c", anon), DocumentID("c", anon))
}
