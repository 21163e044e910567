package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aldhinn/Fintel/internal/assets"
	"github.com/aldhinn/Fintel/pkg/models"
)

// Endpoint names accepted by NewHandler
const (
	EndpointSymbols = "symbols"
	EndpointRequest = "request"
	EndpointData    = "data"
)

// ErrUnknownEndpoint is returned by NewHandler for an unsupported endpoint name
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Handler processes one decoded request and returns a JSON-encodable body and
// an HTTP status. A nil body means the response has no content.
type Handler interface {
	Process(ctx context.Context, method string, request any) (any, int)
}

// AssetRegistry is the asset store surface used by the handlers
type AssetRegistry interface {
	BeginBatch(ctx context.Context) (assets.RegistrationBatch, error)
	ListActive(ctx context.Context) ([]string, error)
	GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
}

// PriceReader reads stored bars
type PriceReader interface {
	QueryRange(ctx context.Context, assetID uuid.UUID, start, end time.Time) ([]models.PricePoint, error)
}

// Dispatcher starts background ingestion for newly registered symbols
type Dispatcher interface {
	Dispatch(symbols []string)
}

// Deps are the collaborators shared by all handlers
type Deps struct {
	Assets     AssetRegistry
	Prices     PriceReader
	Dispatcher Dispatcher
}

// ErrorResponse is the body of every 4xx/5xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationError marks a malformed request; it maps to 400
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewHandler returns the handler for endpoint
func NewHandler(endpoint string, deps Deps) (Handler, error) {
	switch endpoint {
	case EndpointSymbols:
		return &symbolsHandler{assets: deps.Assets}, nil
	case EndpointRequest:
		return &requestHandler{assets: deps.Assets, dispatcher: deps.Dispatcher}, nil
	case EndpointData:
		return &dataHandler{assets: deps.Assets, prices: deps.Prices}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
}

// MustHandler is like NewHandler but panics on an unknown endpoint
func MustHandler(endpoint string, deps Deps) Handler {
	h, err := NewHandler(endpoint, deps)
	if err != nil {
		panic(err)
	}
	return h
}

func errorBody(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}
