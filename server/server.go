package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"fruitchain/ledger"
	"fruitchain/repository"
	service_registry "fruitchain/srvreg"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	logger          cmtlog.Logger
	startTime       time.Time
	serviceRegistry *service_registry.ServiceRegistry
	guard           *ledger.Guard
	repository      *repository.Repository
}

// ResponseInfo contains information about the response
type ResponseInfo struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	BodyLength  int    `json:"body_length"`
}

// ClientResponse is the response format sent to clients
type ClientResponse struct {
	StatusCode int               `json:"-"` // Not included in JSON
	Headers    map[string]string `json:"-"` // Not included in JSON
	Body       interface{}       `json:"body"`
	RequestID  string            `json:"request_id"`
	Info       ResponseInfo      `json:"info"`
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, logger cmtlog.Logger, serviceRegistry *service_registry.ServiceRegistry, guard *ledger.Guard, repository *repository.Repository) (*WebServer, error) {
	mux := http.NewServeMux()

	server := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: mux,
		},
		logger:          logger,
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		guard:           guard,
		repository:      repository,
	}

	// Register routes
	mux.HandleFunc("/", server.handleRoot)
	mux.HandleFunc("/healthz", server.handleHealth)
	mux.HandleFunc("/debug", server.handleDebug)
	mux.Handle("/metrics", promhttp.Handler())
	// Supply chain endpoints
	mux.HandleFunc("/api/", server.handleAPI)

	return server, nil
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot handles the root endpoint which shows node status
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html")

	w.Write([]byte("<h1>Fruit Supply Chain Orchestrator</h1>"))
	w.Write([]byte("<p>API base path: <code>/api/</code></p>"))
	w.Write([]byte("<p>Uptime: " + time.Since(ws.startTime).String() + "</p>"))
}

// handleHealth is the liveness probe
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleDebug provides debugging information
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debugInfo := map[string]interface{}{
		"uptime": time.Since(ws.startTime).String(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Environment verification result is never cached, so this probe
	// reflects the gateway node as it is right now
	if err := ws.guard.VerifyEnvironment(ctx); err != nil {
		debugInfo["ledger_status"] = "violation"
		debugInfo["ledger_error"] = err.Error()
	} else {
		debugInfo["ledger_status"] = "ok"
	}

	if tasks, repoErr := ws.repository.PendingSyncTasks(100); repoErr != nil {
		debugInfo["mirror_error"] = repoErr.Error()
	} else {
		debugInfo["pending_sync_tasks"] = len(tasks)
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(debugInfo); err != nil {
		JSONError(w, "Error encoding response: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleAPI dispatches supply chain requests through the service registry
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	requestID, err := resolveRequestID(r)
	if err != nil {
		JSONError(w, "Internal Server Error", http.StatusInternalServerError)
		ws.logger.Error("Failed to generate request ID", "err", err)
		return
	}

	request, err := service_registry.ConvertHTTPRequest(r, requestID)
	if err != nil {
		JSONError(w, "Failed to convert request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("Failed to convert HTTP request", "err", err)
		return
	}
	request.Path = trimAPIPrefix(request.Path)

	response, err := request.GenerateResponse(ws.serviceRegistry)
	if response == nil {
		JSONError(w, "Failed to generate response", http.StatusInternalServerError)
		ws.logger.Error("Handler returned no response", "path", request.Path, "err", err)
		return
	}
	if err != nil {
		ws.logger.Error("Request failed",
			"request_id", requestID, "method", request.Method, "path", request.Path,
			"status", response.StatusCode, "err", err)
	}

	apiResponse := ClientResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Headers,
		Body:       parseBody(response.Body),
		RequestID:  requestID,
		Info: ResponseInfo{
			StatusCode:  response.StatusCode,
			ContentType: response.Headers["Content-Type"],
			BodyLength:  len(response.Body),
		},
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.StatusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(apiResponse); err != nil {
		ws.logger.Error("Failed to encode client response", "err", err)
	}

	ws.logger.Info("=== Req-Res Pair Result ===",
		"method", request.Method,
		"path", request.Path,
		"status", response.StatusCode,
		"request_id", requestID,
	)
}

// trimAPIPrefix strips the /api mount point so registry routes stay flat
func trimAPIPrefix(path string) string {
	const prefix = "/api"
	if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		trimmed := path[len(prefix):]
		if trimmed == "" {
			return "/"
		}
		return trimmed
	}
	return path
}

// parseBody decodes a handler body for re-embedding in the envelope
func parseBody(body string) interface{} {
	var parsed interface{}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return body
	}
	return parsed
}

// resolveRequestID honors a client-pinned X-Request-ID so a retried
// request keeps its idempotency keys, generating one otherwise
func resolveRequestID(r *http.Request) (string, error) {
	if id := r.Header.Get(service_registry.RequestIDHeader); id != "" {
		return id, nil
	}
	return generateRequestID()
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	w.Write(jsonBytes)
}
