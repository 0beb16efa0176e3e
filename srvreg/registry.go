package srvreg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fruitchain/engine"
	"fruitchain/repository"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// IdentityHeader carries the caller's signing address. Every endpoint
// requires it.
const IdentityHeader = "X-Identity-Address"

// RequestIDHeader lets a client pin the request id. A retried request
// carrying the same id derives the same idempotency keys and resumes
// its journaled submissions instead of resubmitting.
const RequestIDHeader = "X-Request-ID"

// Request represents the client's original HTTP request
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Identity returns the caller's signing address from the headers
func (r *Request) Identity() string {
	return r.Headers[IdentityHeader]
}

// PathPart returns the path segment at the given index, "" if absent
func (r *Request) PathPart(index int) string {
	parts := strings.Split(strings.Trim(r.Path, "/"), "/")
	if index < 0 || index >= len(parts) {
		return ""
	}
	return parts[index]
}

// Response represents the computed response for a request
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool // whether a route is exact or pattern-based
	mu          sync.RWMutex
	engine      *engine.Engine
	repository  *repository.Repository
	logger      cmtlog.Logger
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(eng *engine.Engine, repo *repository.Repository, logger cmtlog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		engine:      eng,
		repository:  repo,
		logger:      logger,
	}
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the appropriate handler for a given path and
// whether one was found
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	// Try exact match first
	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	if handler, ok := sr.handlers[key]; ok {
		if sr.exactRoutes[key] {
			return handler, true
		}
	}

	// Try pattern matching
	for routeKey, handler := range sr.handlers {
		if routeKey.Method != strings.ToUpper(method) {
			continue
		}
		if sr.exactRoutes[routeKey] {
			continue
		}
		if matchPath(routeKey.Path, path) {
			return handler, true
		}
	}

	return nil, false
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/farms/:id" matching "/farms/FARM-001".
func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i := range len(patternParts) {
		if strings.HasPrefix(patternParts[i], ":") {
			continue
		}
		if patternParts[i] != pathParts[i] {
			return false
		}
	}

	return true
}

// RegisterDefaultServices sets up the supply chain endpoints
func (sr *ServiceRegistry) RegisterDefaultServices() {
	sr.RegisterHandler("GET", "/check-role", true, sr.CheckRoleHandler)
	sr.RegisterHandler("POST", "/managers", true, sr.AddManagerHandler)

	sr.RegisterHandler("GET", "/farms/user", true, sr.ListUserFarmsHandler)
	sr.RegisterHandler("GET", "/farms/:id", false, sr.GetFarmHandler)
	sr.RegisterHandler("POST", "/farm", true, sr.RegisterFarmHandler)
	sr.RegisterHandler("DELETE", "/farm/:id", false, sr.DeleteFarmHandler)

	sr.RegisterHandler("GET", "/products/:id", false, sr.GetProductHandler)

	sr.RegisterHandler("GET", "/inventory/by-id/:id", false, sr.GetInventoryHandler)
	sr.RegisterHandler("PUT", "/inventory/:id/fruit-id", false, sr.SetFruitIDHandler)
	sr.RegisterHandler("POST", "/add-to-inventory", true, sr.AddToInventoryHandler)

	sr.RegisterHandler("POST", "/harvest", true, sr.HarvestHandler)
	sr.RegisterHandler("POST", "/sell-product", true, sr.SellProductHandler)
	sr.RegisterHandler("POST", "/buy-product", true, sr.BuyProductHandler)
	sr.RegisterHandler("POST", "/receive-shipment", true, sr.ReceiveShipmentHandler)
	sr.RegisterHandler("POST", "/ship-to-customer", true, sr.ShipToCustomerHandler)
	sr.RegisterHandler("POST", "/orders/:id/cancel", false, sr.CancelOrderHandler)
	sr.RegisterHandler("POST", "/orders/:id/delivered", false, sr.MarkDeliveredHandler)
	sr.RegisterHandler("GET", "/orders/:id", false, sr.GetOrderHandler)
	sr.RegisterHandler("POST", "/sync-product", true, sr.SyncProductHandler)
}

// ConvertHTTPRequest converts an http.Request into a Request
func ConvertHTTPRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(string(bodyBytes))
		body = compactJSON(raw)
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
	}, nil
}

// GenerateResponse executes the request against the registered handlers
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	handler, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       fmt.Sprintf("Service not found for %s %s", req.Method, req.Path),
		}, nil
	}

	return handler(req)
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		// not JSON, return trimmed original
		return strings.TrimSpace(body)
	}
	return buf.String()
}
