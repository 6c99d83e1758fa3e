package api

import (
	"github.com/Aidin1998/tokenledger/api/responses"
	"github.com/Aidin1998/tokenledger/common/apiutil"
	"github.com/gin-gonic/gin"
)

type depositAddressRequest struct {
	Network string `json:"network" validate:"required,network"`
	Asset   string `json:"asset" validate:"required,asset"`
}

// GET /api/v1/token/wallet
func (s *Server) getWallet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	w, err := s.svc.Market.GetWallet(c.Request.Context(), userID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, w)
}

// GET /api/v1/token/wallet/entries
func (s *Server) listWalletEntries(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := apiutil.QueryInt(c, "limit", 0)
	if !ok {
		return
	}
	entries, err := s.svc.Market.History(c.Request.Context(), userID, limit)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, entries)
}

// POST /api/v1/token/deposit-addresses
func (s *Server) linkDepositAddress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req depositAddressRequest
	if !apiutil.BindJSON(c, s.validator, &req) {
		return
	}
	addr, err := s.svc.Addresses.Link(c.Request.Context(), userID, req.Network, req.Asset)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, addr)
}

// GET /api/v1/token/deposit-addresses
func (s *Server) listDepositAddresses(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := s.svc.Addresses.List(c.Request.Context(), userID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, list)
}

// GET /api/v1/token/deposits
func (s *Server) listDeposits(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := apiutil.QueryInt(c, "limit", 0)
	if !ok {
		return
	}
	list, err := s.svc.Addresses.Deposits(c.Request.Context(), userID, limit)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.List(c, list)
}
