package detection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signscribe/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL + "/"})
}

func testBlob() domain.Blob {
	return domain.Blob{Data: []byte("clip-bytes"), MediaType: domain.MediaTypeWebM}
}

func TestDetectParsesResultAndSendsModelSize(t *testing.T) {
	t.Parallel()

	var gotSize, gotFilename, gotBody, gotContentType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		gotSize = r.URL.Query().Get("model_size")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotBody = string(data)
		gotFilename = header.Filename
		gotContentType = header.Header.Get("Content-Type")

		_, _ = io.WriteString(w, `{
			"text": "hello",
			"confidence": 0.87,
			"alternatives": [{"text": "help", "confidence": 0.08}, {"text": "hold", "confidence": 0.03}],
			"model_info": {"model_size": "2000", "num_classes": 2000, "device": "cpu"}
		}`)
	})

	result, err := client.Detect(context.Background(), testBlob(), domain.ModelSize2000)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if gotSize != "2000" {
		t.Fatalf("expected model_size=2000, got %q", gotSize)
	}
	if gotFilename != "video.webm" || gotContentType != domain.MediaTypeWebM {
		t.Fatalf("unexpected upload part %q (%q)", gotFilename, gotContentType)
	}
	if gotBody != "clip-bytes" {
		t.Fatalf("unexpected upload body %q", gotBody)
	}
	if result.Text != "hello" || result.Confidence != 0.87 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Alternatives) != 2 || result.Alternatives[0].Text != "help" {
		t.Fatalf("unexpected alternatives: %+v", result.Alternatives)
	}
	if result.ModelInfo == nil || result.ModelInfo.Device != "cpu" || result.ModelInfo.NumClasses != 2000 {
		t.Fatalf("unexpected model info: %+v", result.ModelInfo)
	}
}

func TestDetectMissingConfidenceIsParseFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text": "hello"}`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize100)
	if got := domain.ErrorKindOf(err); got != domain.KindParseFailure {
		t.Fatalf("expected parse failure, got %q (%v)", got, err)
	}
}

func TestDetectRejectsConfidenceOutOfRange(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text": "hello", "confidence": 1.5}`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize100)
	if got := domain.ErrorKindOf(err); got != domain.KindParseFailure {
		t.Fatalf("expected parse failure, got %q (%v)", got, err)
	}
}

func TestDetectMalformedJSONIsParseFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize100)
	if got := domain.ErrorKindOf(err); got != domain.KindParseFailure {
		t.Fatalf("expected parse failure, got %q (%v)", got, err)
	}
}

func TestDetectServerErrorUsesDetail(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail": "model error"}`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize300)
	var detectionErr *domain.DetectionError
	if !errors.As(err, &detectionErr) {
		t.Fatalf("expected detection error, got %v", err)
	}
	if detectionErr.Kind != domain.KindHTTPFailure || detectionErr.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected error: %+v", detectionErr)
	}
	if detectionErr.Message != "model error" {
		t.Fatalf("expected message %q, got %q", "model error", detectionErr.Message)
	}
}

func TestDetectServerErrorUsesValidationDetail(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail": [{"loc": ["body", "file"], "msg": "field required"}]}`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize300)
	if err == nil || err.Error() != "field required" {
		t.Fatalf("expected validation message, got %v", err)
	}
}

func TestDetectServerErrorWithoutBodyFallsBackToStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `<html>boom</html>`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize300)
	if err == nil || err.Error() != "HTTP 500: Internal Server Error" {
		t.Fatalf("expected status fallback, got %v", err)
	}
}

func TestDetectErrorFieldOnSuccessIsHTTPFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error": "Inference failed"}`)
	})

	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize1000)
	if got := domain.ErrorKindOf(err); got != domain.KindHTTPFailure {
		t.Fatalf("expected http failure, got %q", got)
	}
	if err.Error() != "Inference failed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDetectUnreachableServerIsNetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: baseURL})
	_, err := client.Detect(context.Background(), testBlob(), domain.ModelSize100)
	if got := domain.ErrorKindOf(err); got != domain.KindNetworkFailure {
		t.Fatalf("expected network failure, got %q (%v)", got, err)
	}
	if err.Error() != "network error" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDetectBatchMapsItemsIndependently(t *testing.T) {
	t.Parallel()

	var filenames []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect-batch" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, header := range r.MultipartForm.File["files"] {
			filenames = append(filenames, header.Filename)
		}
		_, _ = io.WriteString(w, `{
			"results": [
				{"filename": "video_0.webm", "text": "yes", "confidence": 0.9},
				{"filename": "video_1.webm", "error": "Unsupported format"},
				{"filename": "video_2.webm", "text": "no", "confidence": 0.6}
			],
			"total_files": 3,
			"successful_detections": 2
		}`)
	})

	blobs := []domain.Blob{testBlob(), testBlob(), testBlob()}
	batch, err := client.DetectBatch(context.Background(), blobs, domain.ModelSize2000)
	if err != nil {
		t.Fatalf("detect batch: %v", err)
	}
	if strings.Join(filenames, ",") != "video_0.webm,video_1.webm,video_2.webm" {
		t.Fatalf("unexpected uploaded filenames %v", filenames)
	}
	if batch.TotalFiles != 3 || batch.SuccessfulDetections != 2 {
		t.Fatalf("unexpected totals: %+v", batch)
	}
	if len(batch.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(batch.Items))
	}
	if !batch.Items[0].Succeeded() || batch.Items[0].Result.Text != "yes" {
		t.Fatalf("unexpected first item: %+v", batch.Items[0])
	}
	if batch.Items[1].Succeeded() || batch.Items[1].Err.Message != "Unsupported format" {
		t.Fatalf("expected second item to fail, got %+v", batch.Items[1])
	}
	if !batch.Items[2].Succeeded() {
		t.Fatalf("expected third item to succeed")
	}
}

func TestDetectBatchMissingItemsCountAsFailed(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results": [{"text": "yes", "confidence": 0.9}], "total_files": 1, "successful_detections": 1}`)
	})

	batch, err := client.DetectBatch(context.Background(), []domain.Blob{testBlob(), testBlob()}, domain.ModelSize2000)
	if err != nil {
		t.Fatalf("detect batch: %v", err)
	}
	if batch.TotalFiles != 2 || batch.SuccessfulDetections != 1 {
		t.Fatalf("unexpected totals: %+v", batch)
	}
	if batch.Items[1].Succeeded() || batch.Items[1].Err.Kind != domain.KindParseFailure {
		t.Fatalf("expected missing item to fail, got %+v", batch.Items[1])
	}
}

func TestDetectBatchRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.DetectBatch(context.Background(), nil, domain.ModelSize2000); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func TestHealthAndModelInfo(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = io.WriteString(w, `{"status": "healthy", "message": "Sign language detection API is running"}`)
		case "/model-info":
			_, _ = io.WriteString(w, `{"model_venv_available": true, "inference_script_available": false, "model_directory": "/srv/model", "status": "ready"}`)
		default:
			http.NotFound(w, r)
		}
	})

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "healthy" {
		t.Fatalf("unexpected health: %+v", health)
	}

	info, err := client.ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("model info: %v", err)
	}
	if !info.ModelVenvAvailable || info.InferenceScriptAvailable || info.ModelDirectory != "/srv/model" {
		t.Fatalf("unexpected model info: %+v", info)
	}
}

func TestModelInfoErrorField(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error": "model directory missing"}`)
	})

	if _, err := client.ModelInfo(context.Background()); err == nil || err.Error() != "model directory missing" {
		t.Fatalf("expected model info error, got %v", err)
	}
}

func TestHealthNon2xxIsHTTPFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Health(context.Background())
	if got := domain.ErrorKindOf(err); got != domain.KindHTTPFailure {
		t.Fatalf("expected http failure, got %q", got)
	}
}
