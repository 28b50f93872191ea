package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"perch/internal/frames"
)

var testROI = ROI{X1: 0.25, Y1: 0.25, X2: 0.75, Y2: 0.75}

func TestFilterAcceptanceRules(t *testing.T) {
	const width, height = 1000, 1000
	// ROI spans (250,250)-(750,750); ROI area is 250000.
	cases := []struct {
		name string
		raw  Detection
		want bool
	}{
		{
			name: "accepted",
			raw:  Detection{Box: [4]int{400, 400, 600, 600}, Confidence: 0.8, ClassID: 14},
			want: true,
		},
		{
			name: "wrong class",
			raw:  Detection{Box: [4]int{400, 400, 600, 600}, Confidence: 0.8, ClassID: 15},
		},
		{
			name: "low confidence",
			raw:  Detection{Box: [4]int{400, 400, 600, 600}, Confidence: 0.1, ClassID: 14},
		},
		{
			name: "center outside region",
			raw:  Detection{Box: [4]int{0, 0, 200, 200}, Confidence: 0.9, ClassID: 14},
		},
		{
			name: "too small",
			raw:  Detection{Box: [4]int{498, 498, 502, 502}, Confidence: 0.9, ClassID: 14},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kept := Filter([]Detection{tc.raw}, testROI, width, height, 14, 0.25, 0.002)
			if got := len(kept) == 1; got != tc.want {
				t.Fatalf("Filter kept=%d, want kept %v", len(kept), tc.want)
			}
			if tc.want && kept[0].AreaRatio <= 0 {
				t.Fatalf("accepted detection has AreaRatio %f, want > 0", kept[0].AreaRatio)
			}
		})
	}
}

func TestFilterEmptyRegion(t *testing.T) {
	raw := []Detection{{Box: [4]int{10, 10, 20, 20}, Confidence: 0.9, ClassID: 14}}
	if kept := Filter(raw, ROI{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.5}, 100, 100, 14, 0.25, 0); kept != nil {
		t.Fatalf("expected no detections for empty region, got %d", len(kept))
	}
}

func TestClientDetectFiltersResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Image == "" {
			t.Error("request image payload is empty")
		}
		json.NewEncoder(w).Encode(detectResponse{Detections: []Detection{
			{Box: [4]int{400, 400, 600, 600}, Confidence: 0.9, ClassID: 14, ClassName: "bird"},
			{Box: [4]int{400, 400, 600, 600}, Confidence: 0.9, ClassID: 0, ClassName: "person"},
		}})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint:            server.URL,
		ConfidenceThreshold: 0.25,
		ClassID:             14,
		MinAreaRatio:        0.002,
		ROI:                 testROI,
		Timeout:             5 * time.Second,
	})

	frame := &frames.Frame{Seq: 1, Timestamp: time.Now(), Data: []byte{0xff, 0xd8, 0xff, 0xd9}, Width: 1000, Height: 1000}
	got, err := client.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 detection after filtering, got %d", len(got))
	}
	if got[0].ClassName != "bird" {
		t.Fatalf("unexpected class %q", got[0].ClassName)
	}
}

func TestClientDetectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL, ClassID: 14, ROI: testROI, Timeout: time.Second})
	frame := &frames.Frame{Seq: 1, Timestamp: time.Now(), Data: []byte{0xff, 0xd8}, Width: 640, Height: 480}
	if _, err := client.Detect(context.Background(), frame); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestClientDetectEmptyFrame(t *testing.T) {
	client := NewClient(ClientConfig{Endpoint: "http://127.0.0.1:0", ClassID: 14, ROI: testROI})
	if _, err := client.Detect(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil frame")
	}
}
