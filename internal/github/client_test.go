package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New("test-token", srv.URL)
	require.NoError(t, err)
	return client
}

func TestListChangeRequestsPaginates(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/filecoin-project/FIPs/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number":2,"state":"closed","title":"Old","merged_at":"2024-01-02T03:04:05Z",
				"user":{"login":"bob"},
				"head":{"ref":"fip-2","user":{"login":"bob"},"repo":null}}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/filecoin-project/FIPs/pulls?state=all&per_page=100&page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"number":1,"state":"open","title":"New FIP",
			"user":{"login":"alice"},
			"head":{"ref":"fip-1","user":{"login":"alice"},"repo":{"name":"FIPs","owner":{"login":"alice-org"}}}}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	client, err := New("test-token", srv.URL)
	require.NoError(t, err)

	requests, err := client.ListChangeRequests(context.Background(), "filecoin-project", "FIPs")
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, ChangeRequest{
		Number: 1, State: StateOpen, HeadRef: "fip-1", HeadOwner: "alice-org",
		HeadRepo: "FIPs", Submitter: "alice", Title: "New FIP",
	}, requests[0])
	assert.True(t, requests[0].IsOpen())

	assert.Equal(t, "bob", requests[1].HeadOwner)
	assert.Empty(t, requests[1].HeadRepo)
	assert.True(t, requests[1].Merged)
	assert.False(t, requests[1].IsOpen())
}

func TestListChangeRequestsError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	_, err := client.ListChangeRequests(context.Background(), "o", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list pull requests o/missing")
}

func TestPostComment(t *testing.T) {
	var body map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/o/FIPs/issues/12/comments", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1}`)
	}))

	err := client.PostComment(context.Background(), Target{Owner: "o", Name: "FIPs", Number: 12}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", body["body"])
}

func TestAddDiscussionComment(t *testing.T) {
	var calls []graphQLRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var req graphQLRequest
		assert.NoError(t, json.Unmarshal(raw, &req))
		calls = append(calls, req)

		w.Header().Set("Content-Type", "application/json")
		if len(calls) == 1 {
			fmt.Fprint(w, `{"data":{"repository":{"discussion":{"id":"D_kwDO123"}}}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"addDiscussionComment":{"clientMutationId":null}}}`)
	}))

	err := client.AddDiscussionComment(context.Background(), "o", "FIPs", 7, `say "hi"`)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, float64(7), calls[0].Variables["number"])
	assert.Equal(t, "D_kwDO123", calls[1].Variables["discussionId"])
	assert.Equal(t, `say "hi"`, calls[1].Variables["body"])
}

func TestAddDiscussionCommentErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"repository":{"discussion":null}},"errors":[{"message":"Could not resolve to a Discussion"}]}`)
	}))
	err := client.AddDiscussionComment(context.Background(), "o", "FIPs", 404, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not resolve to a Discussion")
}
