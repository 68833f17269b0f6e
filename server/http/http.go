package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	pdfrag "github.com/w-h-a/pdfrag"
	"github.com/w-h-a/pdfrag/index"
	"github.com/w-h-a/pdfrag/pipeline"
	"github.com/w-h-a/pdfrag/server"
)

const maxUploadBytes = 64 << 20

type httpServer struct {
	options server.Options
	handler http.Handler
}

func (s *httpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.options.Address,
		Handler: s.handler,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.InfoContext(ctx, "http server listening", "address", s.options.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type queryResponse struct {
	Response         string    `json:"response"`
	Context          []string  `json:"context"`
	SimilarityScores []float32 `json:"similarity_scores"`
	NumContextChunks int       `json:"num_context_chunks"`
}

type ingestResponse struct {
	TotalDocuments  int    `json:"total_documents"`
	TotalChunks     int    `json:"total_chunks"`
	TotalEmbeddings int    `json:"total_embeddings"`
	Durable         bool   `json:"durable"`
	Warning         string `json:"warning,omitempty"`
}

type handlers struct {
	rag *pdfrag.RAG
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pdf rag pipeline",
	})
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeErrorDetail(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	files := make([]pdfrag.File, 0, len(headers))

	for _, header := range headers {
		if !isPDF(header.Filename, header.Header.Get("Content-Type")) {
			writeErrorDetail(w, http.StatusBadRequest, "file "+header.Filename+" is not a pdf")
			return
		}

		f, err := header.Open()
		if err != nil {
			writeErrorDetail(w, http.StatusBadRequest, "failed to open file "+header.Filename)
			return
		}

		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeErrorDetail(w, http.StatusBadRequest, "failed to read file "+header.Filename)
			return
		}

		files = append(files, pdfrag.File{Filename: header.Filename, Content: content})
	}

	stats, err := h.rag.IngestPDFs(r.Context(), files)

	rsp := ingestResponse{
		TotalDocuments:  stats.TotalDocuments,
		TotalChunks:     stats.TotalChunks,
		TotalEmbeddings: stats.TotalEmbeddings,
		Durable:         stats.Durable,
	}

	var persistErr *pipeline.PersistenceError
	if errors.As(err, &persistErr) {
		// degraded success: data is queryable but the snapshot write failed
		rsp.Warning = persistErr.Error()
		writeJSON(w, http.StatusOK, rsp)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rsp)
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	answer, err := h.rag.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Response:         answer.Response,
		Context:          answer.Context,
		SimilarityScores: answer.Scores,
		NumContextChunks: answer.NumContextChunks,
	})
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.rag.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "pipeline reset successfully",
	})
}

func isPDF(filename string, contentType string) bool {
	if strings.Contains(contentType, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var inputErr *pipeline.InputError
	if errors.As(err, &inputErr) {
		writeErrorDetail(w, http.StatusBadRequest, inputErr.Error())
		return
	}

	var extErr *pipeline.ExternalError
	if errors.As(err, &extErr) {
		writeErrorDetail(w, http.StatusBadGateway, extErr.Error())
		return
	}

	var dimErr *index.DimensionError
	if errors.As(err, &dimErr) {
		writeErrorDetail(w, http.StatusInternalServerError, dimErr.Error())
		return
	}

	writeErrorDetail(w, http.StatusInternalServerError, err.Error())
}

func writeErrorDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func logging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		slog.InfoContext(r.Context(), "handled request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// NewHandler builds the full route table so tests can drive it without a
// listening socket.
func NewHandler(rag *pdfrag.RAG, middleware ...func(h http.Handler) http.Handler) http.Handler {
	h := &handlers{rag: rag}

	router := mux.NewRouter()
	router.HandleFunc("/", h.health).Methods(http.MethodGet)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/ingest-pdf", h.ingest).Methods(http.MethodPost)
	router.HandleFunc("/query-pdf", h.query).Methods(http.MethodPost)
	router.HandleFunc("/reset-pdf", h.reset).Methods(http.MethodPost)

	var handler http.Handler = router
	handler = logging(handler)
	handler = cors(handler)

	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}

	return handler
}

func NewServer(rag *pdfrag.RAG, opts ...server.Option) server.Server {
	options := server.NewOptions(opts...)

	var middleware []func(h http.Handler) http.Handler
	if ms, ok := MiddlewareFrom(options.Context); ok {
		middleware = ms
	}

	s := &httpServer{
		options: options,
		handler: NewHandler(rag, middleware...),
	}

	return s
}
