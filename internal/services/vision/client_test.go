package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testImage = []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal completion: %v", err)
	}
	return body
}

func newTestClient(serverURL string, opts ...Option) *Client {
	base := []Option{
		WithSleeper(func(time.Duration) {}),
	}
	return NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: serverURL,
		Model:   "gpt-4o-mini",
	}, append(base, opts...)...)
}

func TestClassifyParsesVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization header = %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("unexpected message shape: %+v", req.Messages)
		} else if img := req.Messages[0].Content[1].ImageURL; img == nil || !strings.HasPrefix(img.URL, "data:image/jpeg;base64,") {
			t.Error("image content is not a base64 data URI")
		}
		w.Write(completionBody(t, `{"birds_present":true,"count":2,"species_guess":"Blue Jay","confidence":"high","summary":"Two jays at the feeder."}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Classify(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Species != "Blue Jay" || result.Confidence != "high" || result.Count != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Raw == "" {
		t.Fatal("raw payload not preserved")
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "```json\n{\"species_guess\":\"House Finch\",\"confidence\":\"medium\"}\n```"))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Classify(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Species != "House Finch" || result.Confidence != "medium" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Count != 1 {
		t.Fatalf("count should default to 1, got %d", result.Count)
	}
}

func TestClassifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			return
		}
		w.Write(completionBody(t, `{"species_guess":"Dark-eyed Junco","confidence":"low"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, WithRetryMaxAttempts(3)).Classify(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Species != "Dark-eyed Junco" {
		t.Fatalf("unexpected species %q", result.Species)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

func TestClassifyExhaustionMakesExactlyMaxAttempts(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithRetryMaxAttempts(3)).Classify(context.Background(), testImage)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("error does not report exhaustion: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d calls, want exactly 3", got)
	}
}

func TestClassifyDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithRetryMaxAttempts(3)).Classify(context.Background(), testImage)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server saw %d calls, want 1 (no retry on auth failure)", got)
	}
}

func TestClassifyHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody(t, `{"species_guess":"unknown","confidence":"low"}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server.URL, WithSleeper(func(d time.Duration) { slept = append(slept, d) }))
	if _, err := client.Classify(context.Background(), testImage); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("sleeps = %v, want one 7s sleep from Retry-After", slept)
	}
}

func TestClassifyRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	if _, err := client.Classify(context.Background(), testImage); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestDecodeModelJSONExtractsEmbeddedObject(t *testing.T) {
	var result Result
	content := `Here is my analysis: {"species_guess":"Tufted Titmouse","confidence":"high"} Hope that helps!`
	if err := decodeModelJSON(content, &result); err != nil {
		t.Fatalf("decodeModelJSON failed: %v", err)
	}
	if result.Species != "Tufted Titmouse" {
		t.Fatalf("species = %q", result.Species)
	}
}
