package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"go.uber.org/zap"
)

type KeysHandler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

func NewKeysHandler(led *ledger.Ledger, logger *zap.Logger) *KeysHandler {
	return &KeysHandler{ledger: led, logger: logger}
}

// Transactions lists the key ledger with the current balance.
// GET /api/keys/transactions?limit=&offset=
func (h *KeysHandler) Transactions(c *gin.Context) {
	ctx, uid := c.Request.Context(), mw.GetUserID(c)
	balance, err := h.ledger.Balance(ctx, uid)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	txs, total, err := h.ledger.History(ctx, uid, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, gin.H{"balance": balance, "total": total, "transactions": txs})
}
