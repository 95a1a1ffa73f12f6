package ginx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response 统一响应信封：{meta:{code,message,details}, data}
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data,omitempty"`
}

// Meta 状态码与提示
type Meta struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail 字段级错误
type ErrorDetail struct {
	Path string `json:"path"`
	Info string `json:"info"`
}

func write(c *gin.Context, status int, message string, data interface{}, details []ErrorDetail) {
	c.JSON(status, Response{
		Meta: Meta{Code: status, Message: message, Details: details},
		Data: data,
	})
}

// Success 200
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, http.StatusText(http.StatusOK), data, nil)
}

// Accepted 202，交易已进入接入缓冲
func Accepted(c *gin.Context, data interface{}) {
	write(c, http.StatusAccepted, http.StatusText(http.StatusAccepted), data, nil)
}

// Fail 错误响应，message 为空时使用状态码的标准文本
func Fail(c *gin.Context, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	write(c, status, message, nil, nil)
}

// BindError 请求绑定失败：校验错误逐字段展开，其余按 400 原样返回
func BindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	details := make([]ErrorDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ErrorDetail{Path: fe.Field(), Info: describe(fe)})
	}
	write(c, http.StatusBadRequest, "validation failed", nil, details)
}

var tagFormats = map[string]string{
	"required": "%s is required",
	"min":      "%s must be >= %s",
	"max":      "%s must be <= %s",
	"oneof":    "%s must be one of [%s]",
}

func describe(fe validator.FieldError) string {
	format, ok := tagFormats[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
	if fe.Tag() == "required" {
		return fmt.Sprintf(format, fe.Field())
	}
	return fmt.Sprintf(format, fe.Field(), fe.Param())
}
