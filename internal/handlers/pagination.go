package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"orderflow/internal/lifecycle"
	"orderflow/internal/store"
)

var errBadPagination = errors.New("page and limit must be positive integers, page at most 1000000")

func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := int64(store.DefaultPageLimit)

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 || p > store.MaxPage {
			return 0, 0, errBadPagination
		}
		page = p
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 {
			return 0, 0, errBadPagination
		}
		limit = l
	}
	if limit > store.MaxPageLimit {
		limit = store.MaxPageLimit
	}

	return page, limit, nil
}

func pageFromQuery(c *gin.Context) (lifecycle.Page, error) {
	page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		return lifecycle.Page{}, err
	}
	return lifecycle.Page{Page: page, Limit: limit}, nil
}

func listResponse(orders interface{}, page lifecycle.Page) gin.H {
	return gin.H{
		"orders": orders,
		"page":   page.Page,
		"limit":  page.Limit,
	}
}
