package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"careassist/pkg/httputil"

	"github.com/sashabaranov/go-openai"
)

// Kind 错误类别
type Kind string

const (
	KindExtraction  Kind = "extraction"
	KindChunking    Kind = "chunking"
	KindEmbedding   Kind = "embedding"
	KindUpsert      Kind = "upsert"
	KindRetrieval   Kind = "retrieval"
	KindUnknownTool Kind = "unknown_tool"
	KindValidation  Kind = "validation"
)

// Reason 面向用户的失败原因，由客户端结构化给出
type Reason string

const (
	ReasonTimeout    Reason = "timeout"
	ReasonCredential Reason = "credential"
	ReasonFormat     Reason = "format"
	ReasonInput      Reason = "input"
	ReasonBackend    Reason = "backend"
)

// Step 入库流水线步骤
type Step string

const (
	StepValidate Step = "validate"
	StepExtract  Step = "extract"
	StepChunk    Step = "chunk"
	StepEmbed    Step = "embed"
	StepUpsert   Step = "upsert"
	StepDone     Step = "done"
)

var (
	// ErrUnsupportedFormat 不支持的文件格式
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyText 提取结果为空
	ErrEmptyText = errors.New("no text could be extracted from the file")
	// ErrFileTooLarge 文件超过上限
	ErrFileTooLarge = errors.New("file size exceeds limit")
)

// Error 带类别、步骤和原因的错误
type Error struct {
	Kind   Kind
	Step   Step
	Reason Reason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Step != "" {
		prefix = string(e.Step)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError 构造错误，Reason 由底层错误推断
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Reason: ClassifyReason(err)}
}

// withStep 给错误打上步骤标签，已有 *Error 时保留其类别与原因
func withStep(step Step, kind Kind, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		out := *re
		if out.Step == "" {
			out.Step = step
		}
		return &out
	}
	e := NewError(kind, "", err)
	e.Step = step
	return e
}

// KindOf 返回错误类别，非 *Error 返回空
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// ReasonOf 返回错误原因
func ReasonOf(err error) Reason {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	return ClassifyReason(err)
}

// StepOf 返回失败步骤
func StepOf(err error) Step {
	var re *Error
	if errors.As(err, &re) {
		return re.Step
	}
	return ""
}

// ClassifyReason 根据错误链中的类型推断原因
func ClassifyReason(err error) Reason {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrEmptyText) {
		return ReasonFormat
	}
	if errors.Is(err, ErrFileTooLarge) {
		return ReasonInput
	}

	status := httputil.StatusCode(err)
	if status == 0 {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			status = reqErr.HTTPStatusCode
		}
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonCredential
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ReasonTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ReasonInput
	}
	return ReasonBackend
}
