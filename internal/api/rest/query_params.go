package rest

import (
	"github.com/gin-gonic/gin"
)

const MAX_PAGE_SIZE = 100

// ListTokensQueryParams holds query parameters for GET /tokens
type ListTokensQueryParams struct {
	Limit  int `form:"limit,default=20"`
	Offset int `form:"offset,default=0"`
}

// ListHoldersQueryParams holds query parameters for GET /tokens/:address/holders
type ListHoldersQueryParams struct {
	Limit  int `form:"limit,default=50"`
	Offset int `form:"offset,default=0"`
}

// ListSwapsQueryParams holds query parameters for GET /tokens/:address/swaps
type ListSwapsQueryParams struct {
	// Hours bounds the lookback window
	Hours int `form:"hours,default=24"`
	Limit int `form:"limit,default=100"`
}

// ParseListTokensQuery parses query parameters for GET /tokens
func ParseListTokensQuery(c *gin.Context) (*ListTokensQueryParams, error) {
	var params ListTokensQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}
	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	return &params, nil
}

// ParseListHoldersQuery parses query parameters for GET /tokens/:address/holders
func ParseListHoldersQuery(c *gin.Context) (*ListHoldersQueryParams, error) {
	var params ListHoldersQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	return &params, nil
}

// ParseListSwapsQuery parses query parameters for GET /tokens/:address/swaps
func ParseListSwapsQuery(c *gin.Context) (*ListSwapsQueryParams, error) {
	var params ListSwapsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Hours <= 0 || params.Hours > 24*7 {
		params.Hours = 24
	}
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}
	if params.Limit <= 0 {
		params.Limit = 100
	}

	return &params, nil
}
