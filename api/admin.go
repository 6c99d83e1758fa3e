package api

import (
	"github.com/Aidin1998/tokenledger/api/responses"
	"github.com/Aidin1998/tokenledger/common/apiutil"
	"github.com/Aidin1998/tokenledger/common/auth"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type saleActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type confirmResponse struct {
	Purchase *models.TokenPurchase `json:"purchase"`
	Applied  bool                  `json:"applied"`
}

func (s *Server) auditLog(c *gin.Context, event string, fields ...zap.Field) {
	actor := ""
	if id, ok := auth.UserID(c); ok {
		actor = id.String()
	}
	fields = append(fields,
		zap.String("event", event),
		zap.String("actor", actor),
		zap.String("ip", c.ClientIP()))
	s.logger.Info("AUDIT", fields...)
}

// GET /api/v1/admin/token/purchases/pending
func (s *Server) listPendingPurchases(c *gin.Context) {
	limit, ok := apiutil.QueryInt(c, "limit", 0)
	if !ok {
		return
	}
	list, err := s.svc.Purchases.ListPending(c.Request.Context(), limit)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, list)
}

// POST /api/v1/admin/token/purchases/:id/confirm
func (s *Server) confirmPurchase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, applied, err := s.svc.Purchases.Confirm(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	s.auditLog(c, "purchase.confirm", zap.String("purchase_id", id.String()), zap.Bool("applied", applied))
	responses.Success(c, confirmResponse{Purchase: p, Applied: applied})
}

// POST /api/v1/admin/token/purchases/:id/reject
func (s *Server) rejectPurchase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := s.svc.Purchases.Reject(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	s.auditLog(c, "purchase.reject", zap.String("purchase_id", id.String()))
	responses.Success(c, p)
}

// POST /api/v1/admin/token/sale/active
func (s *Server) setSaleActive(c *gin.Context) {
	var req saleActiveRequest
	if !apiutil.BindJSON(c, s.validator, &req) {
		return
	}
	sale, err := s.svc.Sale.SetActive(c.Request.Context(), *req.Active)
	if err != nil {
		responses.Error(c, err)
		return
	}
	s.auditLog(c, "sale.active", zap.Bool("active", *req.Active))
	responses.Success(c, sale)
}
