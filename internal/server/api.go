package server

import (
	"net/http"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gin-gonic/gin"

	"github.com/chainmirror/indexd/internal/logging"
	"github.com/chainmirror/indexd/internal/storage"
)

// ApiHandler serves the small read-only status surface exposed to the
// process supervisor. The full query API lives in the serving layer, not
// here.
type ApiHandler struct {
	Store  *storage.Store
	Params *chaincfg.Params
}

func (h *ApiHandler) GetInfo(c *gin.Context) {
	tip, err := h.Store.BestTip(c.Request.Context())
	if err != nil {
		logging.L.Err(err).Msg("could not load best tip")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	mempoolCount, err := h.Store.MempoolCount(c.Request.Context())
	if err != nil {
		logging.L.Err(err).Msg("could not count mempool entries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"network":       h.Params.Name,
		"height":        tip.Height,
		"blockid":       tip.Hash.String(),
		"mempool_count": mempoolCount,
	})
}

func (h *ApiHandler) GetBestBlockHeight(c *gin.Context) {
	tip, err := h.Store.BestTip(c.Request.Context())
	if err != nil {
		logging.L.Err(err).Msg("could not load best tip")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"block_height": tip.Height})
}
