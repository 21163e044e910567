package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/assets"
	"github.com/aldhinn/Fintel/pkg/logger"
)

// SuccessResponse acknowledges a registration request
type SuccessResponse struct {
	Success bool `json:"success"`
}

type requestHandler struct {
	assets     AssetRegistry
	dispatcher Dispatcher
}

// Process registers every symbol in the list inside one transaction. Any
// invalid element rolls the whole batch back. After commit the symbols are
// handed to the dispatcher and the response returns without waiting for it.
func (h *requestHandler) Process(ctx context.Context, method string, request any) (any, int) {
	if method != http.MethodPost {
		return nil, http.StatusNoContent
	}

	items, ok := request.([]any)
	if !ok {
		return errorBody("The requested asset symbols must be sent via a list of strings."), http.StatusBadRequest
	}
	if len(items) == 0 {
		return errorBody("Provided empty asset symbols list."), http.StatusBadRequest
	}

	batch, err := h.assets.BeginBatch(ctx)
	if err != nil {
		logger.Error("failed to begin registration", zap.Error(err))
		return errorBody("Failed to register symbols."), http.StatusInternalServerError
	}

	symbols := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		raw, ok := item.(string)
		if !ok {
			rollbackBatch(batch)
			return errorBody(fmt.Sprintf("Invalid asset symbol value: %v", item)), http.StatusBadRequest
		}

		symbol, err := assets.NormalizeSymbol(raw)
		if err != nil {
			rollbackBatch(batch)
			return errorBody(fmt.Sprintf("Invalid asset symbol value: %q", raw)), http.StatusBadRequest
		}

		created, err := batch.Register(ctx, symbol)
		if err != nil {
			logger.Error("failed to register symbol", zap.String("symbol", symbol), zap.Error(err))
			rollbackBatch(batch)
			return errorBody("Failed to register symbols."), http.StatusInternalServerError
		}
		if created {
			logger.Debug("registered new symbol", zap.String("symbol", symbol))
		}

		if _, dup := seen[symbol]; !dup {
			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
	}

	if err := batch.Commit(); err != nil {
		logger.Error("failed to commit registration", zap.Error(err))
		rollbackBatch(batch)
		return errorBody(fmt.Sprintf("Registration failed with error: %v", err)), http.StatusInternalServerError
	}

	logger.Info("symbols registered", zap.Strings("symbols", symbols))

	if h.dispatcher != nil {
		h.dispatcher.Dispatch(symbols)
	}

	return SuccessResponse{Success: true}, http.StatusOK
}

func rollbackBatch(batch assets.RegistrationBatch) {
	if err := batch.Rollback(); err != nil {
		logger.Warn("failed to roll back registration", zap.Error(err))
	}
}
