// Package httpapi serves the deposit store over a small JSON API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/cupledger/internal/config"
	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Run serves the API on cfg.ListenAddr until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, store *deposit.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(cfg, store, logger),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cupledger listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(cfg config.Config, store *deposit.Store, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{logger: logger, store: store, cfg: cfg}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/options", handler.handleOptions)
	api.GET("/deposits", handler.handleListDeposits)
	api.POST("/deposits", handler.handleCreateDeposit)
	api.POST("/deposits/:id/redeem", handler.handleRedeemDeposit)
	api.DELETE("/deposits/:id", handler.handleDeleteDeposit)
	api.GET("/stats", handler.handleStats)

	return router
}

type httpHandler struct {
	logger *zap.Logger
	store  *deposit.Store
	cfg    config.Config
}

func (handler *httpHandler) handleOptions(ctx *gin.Context) {
	channels := make([]channelPayload, 0, len(handler.cfg.RedeemMethods))
	for _, channel := range handler.cfg.RedeemMethods {
		channels = append(channels, channelPayload{Name: channel.Name, Label: channel.Label, Link: channel.Link})
	}
	stores := make([]storePayload, 0, len(handler.cfg.Stores))
	for _, store := range handler.cfg.Stores {
		stores = append(stores, storePayload{Name: store, MapLink: config.MapLink(store)})
	}
	ctx.JSON(http.StatusOK, optionsResponse{Stores: stores, RedeemMethods: channels})
}

func (handler *httpHandler) handleListDeposits(ctx *gin.Context) {
	records, ok := handler.reload(ctx)
	if !ok {
		return
	}
	asOf := handler.store.Now()
	deposits := make([]depositPayload, 0, len(records))
	for _, record := range deposit.SortByExpiry(records) {
		deposits = append(deposits, handler.depositView(record, asOf))
	}
	ctx.JSON(http.StatusOK, listResponse{
		Deposits: deposits,
		Stats:    statsView(deposit.Aggregate(records, asOf)),
	})
}

func (handler *httpHandler) handleStats(ctx *gin.Context) {
	records, ok := handler.reload(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"stats": statsView(deposit.Aggregate(records, handler.store.Now()))})
}

func (handler *httpHandler) handleCreateDeposit(ctx *gin.Context) {
	var request createRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	expiryDate, err := request.expiryDate(handler.store.Now())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_deposit", err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	record, err := handler.store.Create(requestCtx, deposit.Draft{
		Item:         request.Item,
		Quantity:     request.Quantity,
		Store:        request.Store,
		RedeemMethod: request.RedeemMethod,
		ExpiryDate:   expiryDate,
	})
	if err != nil {
		handler.respondStoreError(ctx, err, "add failed")
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"deposit": handler.depositView(record, handler.store.Now())})
}

func (handler *httpHandler) handleRedeemDeposit(ctx *gin.Context) {
	id, ok := parseDepositID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	result, err := handler.store.Redeem(requestCtx, id)
	if err != nil {
		handler.respondStoreError(ctx, err, "update failed")
		return
	}
	switch result.Outcome {
	case deposit.RedeemMissed:
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", fmt.Sprintf("deposit %s not found", id)))
	case deposit.RedeemExhausted:
		ctx.JSON(http.StatusOK, gin.H{"outcome": string(result.Outcome), "remaining": 0})
	default:
		ctx.JSON(http.StatusOK, gin.H{
			"outcome":   string(result.Outcome),
			"remaining": result.Record.Quantity.Int64(),
			"deposit":   handler.depositView(result.Record, handler.store.Now()),
		})
	}
}

func (handler *httpHandler) handleDeleteDeposit(ctx *gin.Context) {
	id, ok := parseDepositID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	if err := handler.store.Delete(requestCtx, id); err != nil {
		handler.respondStoreError(ctx, err, "delete failed")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}

func (handler *httpHandler) reload(ctx *gin.Context) ([]deposit.Record, bool) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	records, err := handler.store.Load(requestCtx)
	if err != nil {
		handler.respondStoreError(ctx, err, "load failed")
		return nil, false
	}
	return records, true
}

func (handler *httpHandler) respondStoreError(ctx *gin.Context, err error, message string) {
	if errors.Is(err, deposit.ErrValidation) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_deposit", err.Error()))
		return
	}
	handler.logger.Error(message, zap.Error(err))
	ctx.JSON(http.StatusBadGateway, errorResponse("storage_error", message))
}

func (handler *httpHandler) depositView(record deposit.Record, asOf time.Time) depositPayload {
	status := deposit.Status(record, asOf)
	return depositPayload{
		ID:            record.ID.String(),
		Item:          record.Item,
		Quantity:      record.Quantity.Int64(),
		Store:         record.Store,
		RedeemMethod:  record.RedeemMethod,
		ExpiryDate:    record.ExpiryDate.String(),
		CreatedAt:     record.CreatedAt.UTC().Format(time.RFC3339Nano),
		Status:        status.State.String(),
		DaysRemaining: status.DaysRemaining,
		ExpiresToday:  status.ExpiresToday,
		RedeemLink:    handler.cfg.RedeemLink(record.RedeemMethod),
		MapLink:       config.MapLink(record.Store),
	}
}

func parseDepositID(ctx *gin.Context) (deposit.DepositID, bool) {
	id, err := deposit.NewDepositID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_deposit", "deposit id is required"))
		return deposit.DepositID{}, false
	}
	return id, true
}

func statsView(stats deposit.Stats) statsPayload {
	return statsPayload{
		TotalQuantity:     stats.TotalQuantity,
		RecordCount:       stats.RecordCount,
		NonExpiredCount:   stats.NonExpiredCount,
		ExpiredCount:      stats.ExpiredCount,
		ExpiringSoonCount: stats.ExpiringSoonCount,
		ActiveQuantity:    stats.ActiveQuantity,
		ExpiredQuantity:   stats.ExpiredQuantity,
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
