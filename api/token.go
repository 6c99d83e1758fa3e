package api

import (
	"context"

	"github.com/Aidin1998/tokenledger/api/responses"
	"github.com/Aidin1998/tokenledger/common/apiutil"
	"github.com/Aidin1998/tokenledger/common/auth"
	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/tokensale/market"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createPurchaseRequest struct {
	TokenAmount   int64  `json:"token_amount" validate:"gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=BANK_TRANSFER CRYPTO CARD WALLET"`
}

type proofRequest struct {
	ProofRef string `json:"proof_ref" validate:"required,max=4096"`
}

// tradeRequest sizes an order either in tokens or in settlement currency.
type tradeRequest struct {
	Tokens     int64  `json:"tokens" validate:"required_without=Settlement,excluded_with=Settlement,omitempty,gt=0"`
	Settlement string `json:"settlement" validate:"omitempty,decimal_positive"`
}

type unstakeRequest struct {
	Amount      int64 `json:"amount" validate:"gt=0"`
	EarlyUnlock bool  `json:"early_unlock"`
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.UserID(c)
	if !ok {
		errors.AbortUnauthorized(c, "not authenticated")
	}
	return id, ok
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errors.AbortBadRequest(c, "id must be a uuid", errors.NewFieldError("uuid", "id", "not a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// GET /api/v1/token/sale
func (s *Server) getSale(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	info, err := s.svc.Sale.Info(c.Request.Context(), userID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, info)
}

// POST /api/v1/token/purchases
func (s *Server) createPurchase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createPurchaseRequest
	if !apiutil.BindJSON(c, s.validator, &req) {
		return
	}
	p, err := s.svc.Purchases.Create(c.Request.Context(), userID, req.TokenAmount, models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, p)
}

// GET /api/v1/token/purchases
func (s *Server) listPurchases(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := apiutil.QueryInt(c, "limit", 0)
	if !ok {
		return
	}
	list, err := s.svc.Purchases.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, list)
}

// GET /api/v1/token/purchases/:id
func (s *Server) getPurchase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := s.svc.Purchases.Get(c.Request.Context(), userID, id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, p)
}

// POST /api/v1/token/purchases/:id/proof
func (s *Server) submitProof(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req proofRequest
	if !apiutil.BindJSON(c, s.validator, &req) {
		return
	}
	p, err := s.svc.Purchases.SubmitProof(c.Request.Context(), userID, id, req.ProofRef)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, p)
}

// POST /api/v1/token/market/buy
func (s *Server) buy(c *gin.Context) {
	s.trade(c, s.svc.Market.Buy)
}

// POST /api/v1/token/market/sell
func (s *Server) sell(c *gin.Context) {
	s.trade(c, s.svc.Market.Sell)
}

func (s *Server) trade(c *gin.Context, exec func(context.Context, uuid.UUID, market.Order) (*market.Trade, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req tradeRequest
	if !apiutil.BindJSON(c, s.validator, &req) {
		return
	}
	order := market.Order{Tokens: req.Tokens}
	if req.Settlement != "" {
		amount, err := decimal.NewFromString(req.Settlement)
		if err != nil {
			errors.AbortBadRequest(c, "settlement must be a decimal")
			return
		}
		order.Settlement = amount
	}
	trade, err := exec(c.Request.Context(), userID, order)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, trade)
}

// POST /api/v1/token/unstake
func (s *Server) unstake(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req unstakeRequest
	if !apiutil.BindJSON(c, s.validator, &req) {
		return
	}
	res, err := s.svc.Market.Unstake(c.Request.Context(), userID, req.Amount, req.EarlyUnlock)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, res)
}
