package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"oip/txguard/internal/history"
	"oip/txguard/internal/model"
	"oip/txguard/internal/source"
	"oip/txguard/internal/worker"
	"oip/txguard/pkg/ginx"
	"oip/txguard/pkg/logger"
)

// Backend 诊断接口依赖的流水线能力（*worker.Manager 实现）
type Backend interface {
	Status() model.PipelineStatus
	AccountCount(accountID int) (int64, error)
	Submit(ctx context.Context, tx model.Transaction) error
}

// SubmitTransactionRequest 交易接入请求
type SubmitTransactionRequest struct {
	ID             string `json:"id" binding:"required,max=64"`
	AccountID      *int   `json:"account_id" binding:"required,min=0"`
	Amount         *int64 `json:"amount" binding:"required,min=0"`
	Classification string `json:"classification" binding:"omitempty,oneof=NORMAL ANOMALOUS"`
}

// AccountResponse 账户计数
type AccountResponse struct {
	AccountID int   `json:"account_id"`
	Count     int64 `json:"count"`
}

// PipelineHandler 流水线诊断 HTTP 处理器
type PipelineHandler struct {
	backend Backend
	service string
	logger  logger.Logger
}

// NewPipelineHandler 创建处理器实例
func NewPipelineHandler(backend Backend, service string, log logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		backend: backend,
		service: service,
		logger:  log,
	}
}

// Health 存活检查
func (h *PipelineHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.service,
	})
}

// Status 流水线快照
func (h *PipelineHandler) Status(c *gin.Context) {
	ginx.Success(c, h.backend.Status())
}

// GetAccount 账户累计交易数
func (h *PipelineHandler) GetAccount(c *gin.Context) {
	accountID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		ginx.Fail(c, http.StatusBadRequest, "invalid account_id")
		return
	}

	count, err := h.backend.AccountCount(accountID)
	if err != nil {
		if errors.Is(err, history.ErrUnknownAccount) {
			ginx.Fail(c, http.StatusNotFound, "account not found")
			return
		}
		h.logger.Errorf(c.Request.Context(), "[HTTP] get account %d failed: %v", accountID, err)
		ginx.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ginx.Success(c, AccountResponse{AccountID: accountID, Count: count})
}

// SubmitTransaction 接入一笔交易
func (h *PipelineHandler) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BindError(c, err)
		return
	}

	tx := model.Transaction{
		ID:             req.ID,
		AccountID:      *req.AccountID,
		Amount:         *req.Amount,
		Classification: model.Classification(req.Classification),
	}

	err := h.backend.Submit(c.Request.Context(), tx)
	switch {
	case err == nil:
		ginx.Accepted(c, gin.H{"id": tx.ID})
	case errors.Is(err, model.ErrAccountOutOfRange),
		errors.Is(err, model.ErrNegativeAmount),
		errors.Is(err, model.ErrBadClassification):
		ginx.Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, source.ErrFeedClosed), errors.Is(err, worker.ErrIngestDisabled):
		ginx.Fail(c, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Errorf(c.Request.Context(), "[HTTP] submit transaction %s failed: %v", tx.ID, err)
		ginx.Fail(c, http.StatusInternalServerError, err.Error())
	}
}
