package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/audiofile-api/internal/database"
	"github.com/snarg/audiofile-api/internal/ingest"
)

// mockPipeline implements UploadPipeline for testing.
type mockPipeline struct {
	lastName   string
	lastRaw    []byte
	lastSentAt time.Time
	result     *database.AudioFile
	err        error
}

func (m *mockPipeline) ProcessAudioUpload(ctx context.Context, origName string, raw []byte, requestSentAt time.Time) (*database.AudioFile, error) {
	m.lastName = origName
	m.lastRaw = raw
	m.lastSentAt = requestSentAt
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockFinder implements RecordFinder for testing.
type mockFinder struct {
	records map[int64]*database.AudioFile
	err     error
}

func (m *mockFinder) GetAudioFile(ctx context.Context, id int64) (*database.AudioFile, error) {
	if m.err != nil {
		return nil, m.err
	}
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	return nil, database.ErrNotFound
}

func sampleRecord() *database.AudioFile {
	transcript := "ok this is a testing track to see if you can hear me"
	confidence := float32(0.95)
	alternatives := 1
	return &database.AudioFile{
		ID: 3,
		FileMetadata: database.FileMetadata{
			FileName:      "base64encodedflacfile1613656379",
			Mime:          "audio/flac",
			FileSize:      364068,
			RequestSentAt: time.Date(2021, 2, 18, 13, 52, 59, 0, time.UTC),
		},
		RateHertz:        44100,
		Transcript:       &transcript,
		Confidence:       &confidence,
		NoOfAlternatives: &alternatives,
		CreatedAt:        time.Date(2021, 2, 18, 13, 53, 1, 0, time.UTC),
		UpdatedAt:        time.Date(2021, 2, 18, 13, 53, 1, 0, time.UTC),
	}
}

func newTestRouter(pipeline *mockPipeline, finder *mockFinder) http.Handler {
	h := NewAudioFilesHandler(pipeline, finder, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/v1", h.Routes)
	return r
}

func buildUpload(t *testing.T, fileField, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(fileData)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func decodeEnvelope(t *testing.T, body []byte) (status string, data map[string]any, errs map[string]any) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v; body = %s", err, body)
	}
	json.Unmarshal(env.Data, &data)
	json.Unmarshal(env.Errors, &errs)
	return env.Status, data, errs
}

func TestConnectivity(t *testing.T) {
	router := newTestRouter(&mockPipeline{}, &mockFinder{})

	req := httptest.NewRequest("GET", "/v1/audiofiles/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	status, data, _ := decodeEnvelope(t, rec.Body.Bytes())
	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}
	if data["message"] != msgConnectivity {
		t.Errorf("message = %q", data["message"])
	}

	// Success envelope carries an empty errors array
	var env map[string]any
	json.Unmarshal(rec.Body.Bytes(), &env)
	if errs, ok := env["errors"].([]any); !ok || len(errs) != 0 {
		t.Errorf("errors = %v, want []", env["errors"])
	}
}

func TestGet_Found(t *testing.T) {
	finder := &mockFinder{records: map[int64]*database.AudioFile{3: sampleRecord()}}
	router := newTestRouter(&mockPipeline{}, finder)

	req := httptest.NewRequest("GET", "/v1/audiofiles/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	status, data, _ := decodeEnvelope(t, rec.Body.Bytes())
	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}
	if data["message"] != "Audio was transcribed on 2021-02-18 13:53:01." {
		t.Errorf("message = %q", data["message"])
	}
	if data["id"] != float64(3) {
		t.Errorf("id = %v, want 3", data["id"])
	}
	if data["file_name"] != "base64encodedflacfile1613656379" {
		t.Errorf("file_name = %v", data["file_name"])
	}
	if data["transcript"] != "ok this is a testing track to see if you can hear me" {
		t.Errorf("transcript = %v", data["transcript"])
	}
	if data["confidence"] != 0.95 {
		t.Errorf("confidence = %v", data["confidence"])
	}
	if data["rate hertz"] != float64(44100) {
		t.Errorf(`data["rate hertz"] = %v, want 44100`, data["rate hertz"])
	}
	if data["no_of_alternatives"] != float64(1) {
		t.Errorf("no_of_alternatives = %v", data["no_of_alternatives"])
	}
	if data["file_size"] != float64(364068) {
		t.Errorf("file_size = %v", data["file_size"])
	}
}

func TestGet_Idempotent(t *testing.T) {
	finder := &mockFinder{records: map[int64]*database.AudioFile{3: sampleRecord()}}
	router := newTestRouter(&mockPipeline{}, finder)

	var bodies [][]byte
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/v1/audiofiles/3", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		bodies = append(bodies, rec.Body.Bytes())
	}
	if !bytes.Equal(bodies[0], bodies[1]) || !bytes.Equal(bodies[1], bodies[2]) {
		t.Error("repeated GETs returned differing payloads")
	}
}

func TestGet_NotFound(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing_id", "/v1/audiofiles/99"},
		{"non_numeric_id", "/v1/audiofiles/abc"},
		{"zero_id", "/v1/audiofiles/0"},
		{"negative_id", "/v1/audiofiles/-4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockPipeline{}, &mockFinder{})
			req := httptest.NewRequest("GET", tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
			status, _, errs := decodeEnvelope(t, rec.Body.Bytes())
			if status != "failure" {
				t.Errorf("status = %q, want failure", status)
			}
			if errs["message"] != msgNotFound {
				t.Errorf("message = %v", errs["message"])
			}
			if errs["error_code"] != float64(1513606716) {
				t.Errorf("error_code = %v, want 1513606716", errs["error_code"])
			}
		})
	}
}

func TestCreate_Success(t *testing.T) {
	pipeline := &mockPipeline{result: sampleRecord()}
	router := newTestRouter(pipeline, &mockFinder{})

	payload := []byte("ZkxhQyBhdWRpbw==")
	body, ct := buildUpload(t, "file", "base64encodedflacfile", payload)

	before := time.Now()
	req := httptest.NewRequest("POST", "/v1/audiofiles/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	status, data, _ := decodeEnvelope(t, rec.Body.Bytes())
	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}
	if data["message"] != msgTranscribed {
		t.Errorf("message = %q", data["message"])
	}
	if data["file_size"] != float64(364068) {
		t.Errorf("file_size = %v", data["file_size"])
	}

	// The exact wire key includes a space
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"rate hertz":44100`)) {
		t.Errorf(`body missing "rate hertz" key: %s`, rec.Body.String())
	}

	// Pipeline received the upload and a requestSentAt captured at entry
	if pipeline.lastName != "base64encodedflacfile" {
		t.Errorf("original name = %q", pipeline.lastName)
	}
	if !bytes.Equal(pipeline.lastRaw, payload) {
		t.Errorf("raw bytes = %q", pipeline.lastRaw)
	}
	if pipeline.lastSentAt.Before(before) || pipeline.lastSentAt.After(time.Now()) {
		t.Errorf("requestSentAt = %v, not captured at request entry", pipeline.lastSentAt)
	}
}

func TestCreate_NoFileAttached(t *testing.T) {
	pipeline := &mockPipeline{}
	router := newTestRouter(pipeline, &mockFinder{})

	// Multipart form without a "file" part
	body, ct := buildUpload(t, "", "", nil)
	req := httptest.NewRequest("POST", "/v1/audiofiles/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	status, _, errs := decodeEnvelope(t, rec.Body.Bytes())
	if status != "failure" {
		t.Errorf("status = %q, want failure", status)
	}
	if errs["message"] != msgNoFile {
		t.Errorf("message = %v", errs["message"])
	}
	if errs["error_code"] != float64(1613606336) {
		t.Errorf("error_code = %v, want 1613606336", errs["error_code"])
	}

	// Failure envelope carries an empty data array
	var env map[string]any
	json.Unmarshal(rec.Body.Bytes(), &env)
	if data, ok := env["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("data = %v, want []", env["data"])
	}

	// No side effects: the pipeline was never invoked
	if pipeline.lastRaw != nil {
		t.Error("pipeline was invoked despite missing file")
	}
}

func TestCreate_NonMultipartBody(t *testing.T) {
	router := newTestRouter(&mockPipeline{}, &mockFinder{})

	req := httptest.NewRequest("POST", "/v1/audiofiles/", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	_, _, errs := decodeEnvelope(t, rec.Body.Bytes())
	if errs["error_code"] != float64(1613606336) {
		t.Errorf("error_code = %v, want 1613606336", errs["error_code"])
	}
}

func TestCreate_PipelineFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   float64
		wantMsg    string
	}{
		{
			"decode_failure",
			&ingest.PipelineError{Kind: ingest.KindDecode},
			http.StatusBadRequest, 1613606512, msgDecodeFailed,
		},
		{
			"service_failure",
			&ingest.PipelineError{Kind: ingest.KindService},
			http.StatusBadGateway, 1613606485, msgServiceError,
		},
		{
			"persistence_failure",
			&ingest.PipelineError{Kind: ingest.KindPersistence},
			http.StatusBadGateway, 1613606485, msgSaveFailed,
		},
		{
			"unclassified_failure",
			fmt.Errorf("boom"),
			http.StatusBadGateway, 1613606485, msgSaveFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockPipeline{err: tt.err}, &mockFinder{})

			body, ct := buildUpload(t, "file", "sample.flac", []byte("ZkxhQw=="))
			req := httptest.NewRequest("POST", "/v1/audiofiles/", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			status, _, errs := decodeEnvelope(t, rec.Body.Bytes())
			if status != "failure" {
				t.Errorf("status = %q, want failure", status)
			}
			if errs["error_code"] != tt.wantCode {
				t.Errorf("error_code = %v, want %v", errs["error_code"], tt.wantCode)
			}
			if errs["message"] != tt.wantMsg {
				t.Errorf("message = %v, want %q", errs["message"], tt.wantMsg)
			}
		})
	}
}
