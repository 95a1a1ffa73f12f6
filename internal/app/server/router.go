package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"oip/txguard/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(h *PipelineHandler, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(accessLog(log))

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", h.Status)
		v1.GET("/accounts/:id", h.GetAccount)
		v1.POST("/transactions", h.SubmitTransaction)
	}

	return r
}

// accessLog 请求日志中间件
func accessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf(c.Request.Context(), "[HTTP] %s %s %d %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
