package api

import (
	"github.com/Aidin1998/tokenledger/api/responses"
	"github.com/Aidin1998/tokenledger/common/apiutil"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/token/ticks
func (s *Server) listTicks(c *gin.Context) {
	limit, ok := apiutil.QueryInt(c, "limit", 0)
	if !ok {
		return
	}
	ticks, err := s.svc.MarketData.Ticks(c.Request.Context(), limit)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, ticks)
}

// GET /api/v1/token/candles
func (s *Server) listCandles(c *gin.Context) {
	interval, ok := apiutil.QueryInt(c, "interval", 60)
	if !ok {
		return
	}
	limit, ok := apiutil.QueryInt(c, "limit", 100)
	if !ok {
		return
	}
	candles, err := s.svc.MarketData.Candles(c.Request.Context(), interval, limit)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, candles)
}
