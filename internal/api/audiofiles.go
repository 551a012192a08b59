package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/audiofile-api/internal/database"
	"github.com/snarg/audiofile-api/internal/ingest"
	"github.com/snarg/audiofile-api/internal/metrics"
)

// Response message strings. These are part of the wire contract inherited by
// existing clients, typos included.
const (
	msgConnectivity = "Your connecting to the API! Now supply an ID of the audio file you'd like to see the transcription for."
	msgTranscribed  = "Your file has been transcribed."
	msgNotFound     = "The file could not be found"
	msgNoFile       = "No file attached!"
	msgDecodeFailed = "The file contents could not be decoded."
	msgServiceError = "There was a problem transcribing the audio file."
	msgSaveFailed   = "There was a problem saving the audio file."
	msgLookupFailed = "There was a problem fetching the audio file."
)

const maxUploadBytes = 32 << 20

// UploadPipeline runs the ingestion pipeline for one uploaded file.
type UploadPipeline interface {
	ProcessAudioUpload(ctx context.Context, origName string, raw []byte, requestSentAt time.Time) (*database.AudioFile, error)
}

// RecordFinder looks up persisted transcription records.
type RecordFinder interface {
	GetAudioFile(ctx context.Context, id int64) (*database.AudioFile, error)
}

// AudioFilesHandler serves the /v1/audiofiles endpoints.
type AudioFilesHandler struct {
	pipeline UploadPipeline
	records  RecordFinder
	log      zerolog.Logger
}

// NewAudioFilesHandler creates the audiofiles handler.
func NewAudioFilesHandler(pipeline UploadPipeline, records RecordFinder, log zerolog.Logger) *AudioFilesHandler {
	return &AudioFilesHandler{
		pipeline: pipeline,
		records:  records,
		log:      log.With().Str("handler", "audiofiles").Logger(),
	}
}

// Routes registers the audiofiles endpoints.
func (h *AudioFilesHandler) Routes(r chi.Router) {
	r.Get("/audiofiles/", h.Connectivity)
	r.Get("/audiofiles/{id}", h.Get)
	r.Post("/audiofiles/", h.Create)
}

// messageData is the data object of an informational success response.
type messageData struct {
	Message string `json:"message"`
}

// audioFileData is the data object returned for a transcription record.
// The "rate hertz" key literally contains a space; existing clients parse it
// that way.
type audioFileData struct {
	Message          string    `json:"message"`
	ID               int64     `json:"id"`
	FileName         string    `json:"file_name"`
	RequestSentAt    time.Time `json:"request_sent_at"`
	Transcript       *string   `json:"transcript"`
	Confidence       *float32  `json:"confidence"`
	RateHertz        int       `json:"rate hertz"`
	NoOfAlternatives *int      `json:"no_of_alternatives"`
	FileSize         int64     `json:"file_size"`
}

// recordData builds the transport payload for a record. Formatting lives
// here, not on the entity.
func recordData(message string, rec *database.AudioFile) audioFileData {
	return audioFileData{
		Message:          message,
		ID:               rec.ID,
		FileName:         rec.FileName,
		RequestSentAt:    rec.RequestSentAt,
		Transcript:       rec.Transcript,
		Confidence:       rec.Confidence,
		RateHertz:        rec.RateHertz,
		NoOfAlternatives: rec.NoOfAlternatives,
		FileSize:         rec.FileSize,
	}
}

// Connectivity handles GET /v1/audiofiles/ with no id: an informational
// success so clients can confirm they reach the API.
func (h *AudioFilesHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, messageData{Message: msgConnectivity})
}

// Get handles GET /v1/audiofiles/{id}: exact-id lookup, no filtering or
// pagination.
func (h *AudioFilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteFailure(w, http.StatusNotFound, msgNotFound, CodeNotFound)
		return
	}

	rec, err := h.records.GetAudioFile(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteFailure(w, http.StatusNotFound, msgNotFound, CodeNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("record lookup failed")
		WriteFailure(w, http.StatusBadGateway, msgLookupFailed, CodeSaveFailed)
		return
	}

	msg := "Audio was transcribed on " + rec.CreatedAt.UTC().Format("2006-01-02 15:04:05") + "."
	WriteSuccess(w, http.StatusOK, recordData(msg, rec))
}

// Create handles POST /v1/audiofiles/: multipart upload (field name "file"),
// synchronous transcription, persisted record in the response.
func (h *AudioFilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Captured before any I/O so storage and service latency are excluded.
	requestSentAt := time.Now()
	metrics.UploadsTotal.Inc()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteFailure(w, http.StatusBadRequest, msgNoFile, CodeNoFileAttached)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteFailure(w, http.StatusBadRequest, msgNoFile, CodeNoFileAttached)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		WriteFailure(w, http.StatusBadRequest, msgDecodeFailed, CodeDecodeFailed)
		return
	}

	rec, err := h.pipeline.ProcessAudioUpload(r.Context(), header.Filename, raw, requestSentAt)
	if err != nil {
		h.writePipelineFailure(w, header.Filename, err)
		return
	}

	WriteSuccess(w, http.StatusOK, recordData(msgTranscribed, rec))
}

func (h *AudioFilesHandler) writePipelineFailure(w http.ResponseWriter, filename string, err error) {
	var perr *ingest.PipelineError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case ingest.KindDecode:
			WriteFailure(w, http.StatusBadRequest, msgDecodeFailed, CodeDecodeFailed)
			return
		case ingest.KindService:
			h.log.Error().Err(err).Str("file", filename).Msg("speech service failure")
			WriteFailure(w, http.StatusBadGateway, msgServiceError, CodeSaveFailed)
			return
		case ingest.KindPersistence:
			h.log.Error().Err(err).Str("file", filename).Msg("persistence failure")
			WriteFailure(w, http.StatusBadGateway, msgSaveFailed, CodeSaveFailed)
			return
		}
	}
	h.log.Error().Err(err).Str("file", filename).Msg("upload processing failed")
	WriteFailure(w, http.StatusBadGateway, msgSaveFailed, CodeSaveFailed)
}
