package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/pkg/logger"
)

// SymbolsResponse lists active symbols
type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
}

type symbolsHandler struct {
	assets AssetRegistry
}

func (h *symbolsHandler) Process(ctx context.Context, method string, _ any) (any, int) {
	if method != http.MethodGet {
		return nil, http.StatusNoContent
	}

	symbols, err := h.assets.ListActive(ctx)
	if err != nil {
		logger.Error("failed to list active symbols", zap.Error(err))
		return errorBody("Failed to load symbols."), http.StatusInternalServerError
	}
	if symbols == nil {
		symbols = []string{}
	}

	return SymbolsResponse{Symbols: symbols}, http.StatusOK
}
