package rest

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/haven-markets/haven-indexer/internal/api/executor"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// GetToken retrieves a single token with its aggregate metrics
	// GET /api/v1/tokens/:address
	GetToken(c *gin.Context)

	// ListTokens retrieves tracked tokens ordered by market cap
	// GET /api/v1/tokens?limit=<limit>&offset=<offset>
	ListTokens(c *gin.Context)

	// ListHolders retrieves a token's holder list with wallet flags
	// GET /api/v1/tokens/:address/holders?limit=<limit>&offset=<offset>
	ListHolders(c *gin.Context)

	// ListSwaps retrieves a token's recent trades, newest first
	// GET /api/v1/tokens/:address/swaps?hours=<hours>&limit=<limit>
	ListSwaps(c *gin.Context)

	// ListFeeCollections retrieves a token's creator-fee claims
	// GET /api/v1/tokens/:address/fees
	ListFeeCollections(c *gin.Context)

	// GetWalletFlags retrieves the global risk flags for one wallet
	// GET /api/v1/wallets/:address/flags
	GetWalletFlags(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	executor executor.Executor
}

// NewHandler creates a new REST API handler using the shared executor
func NewHandler(exec executor.Executor) Handler {
	return &handler{executor: exec}
}

// tokenAddressParam extracts and validates the :address path parameter.
// Returns "" after writing the error response when the address is invalid.
func tokenAddressParam(c *gin.Context) string {
	address := c.Param("address")
	if address == "" {
		respondBadRequest(c, "Token address is required")
		return ""
	}
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid token address")
		return ""
	}
	return address
}

// GetToken retrieves a single token with its aggregate metrics
func (h *handler) GetToken(c *gin.Context) {
	address := tokenAddressParam(c)
	if address == "" {
		return
	}

	token, err := h.executor.GetToken(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to get token")
		return
	}

	if token == nil {
		respondNotFound(c, "Token not found")
		return
	}

	c.JSON(http.StatusOK, token)
}

// ListTokens retrieves tracked tokens ordered by market cap
func (h *handler) ListTokens(c *gin.Context) {
	queryParams, err := ParseListTokensQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	response, err := h.executor.ListTokens(c.Request.Context(), queryParams.Limit, queryParams.Offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list tokens")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListHolders retrieves a token's holder list with wallet flags
func (h *handler) ListHolders(c *gin.Context) {
	address := tokenAddressParam(c)
	if address == "" {
		return
	}

	queryParams, err := ParseListHoldersQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	response, err := h.executor.GetHolders(c.Request.Context(), address, queryParams.Limit, queryParams.Offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list holders")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListSwaps retrieves a token's recent trades, newest first
func (h *handler) ListSwaps(c *gin.Context) {
	address := tokenAddressParam(c)
	if address == "" {
		return
	}

	queryParams, err := ParseListSwapsQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	since := time.Now().Add(-time.Duration(queryParams.Hours) * time.Hour)
	response, err := h.executor.GetSwaps(c.Request.Context(), address, since, queryParams.Limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list swaps")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListFeeCollections retrieves a token's creator-fee claims
func (h *handler) ListFeeCollections(c *gin.Context) {
	address := tokenAddressParam(c)
	if address == "" {
		return
	}

	response, err := h.executor.GetFeeCollections(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to list fee collections")
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetWalletFlags retrieves the global risk flags for one wallet
func (h *handler) GetWalletFlags(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		respondBadRequest(c, "Wallet address is required")
		return
	}
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid wallet address")
		return
	}

	flags, err := h.executor.GetWalletFlags(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to get wallet flags")
		return
	}

	if flags == nil {
		respondNotFound(c, "Wallet has no flags")
		return
	}

	c.JSON(http.StatusOK, flags)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "haven-indexer-api",
	})
}
