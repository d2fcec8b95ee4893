package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// StatusClientClosedRequest is the non-standard status for a request the client abandoned.
const StatusClientClosedRequest = 499

// 通用错误
var (
	// ErrInternal is the fallback for errors that carry no Errno.
	ErrInternal = NewInternalErr(ServiceCommon, 1, "Internal server error", "服务器内部错误")

	// ErrBind indicates a request body or form that could not be decoded.
	ErrBind = NewRequestErr(ServiceCommon, 1, "Request could not be decoded", "请求参数解析失败")

	// ErrRequestTooLarge indicates a request body above the configured limit.
	ErrRequestTooLarge = NewError(ServiceCommon, CategoryRequest, 2, http.StatusRequestEntityTooLarge,
		codes.InvalidArgument, "Request body too large", "请求体过大")

	// ErrClientClosed indicates the client went away before the response was written.
	// 499 沿用 nginx 约定。
	ErrClientClosed = NewError(ServiceCommon, CategoryRequest, 3, StatusClientClosedRequest,
		codes.Canceled, "Client closed request", "客户端已关闭请求")

	// ErrRequestTimeout indicates a request that exceeded its deadline.
	ErrRequestTimeout = NewTimeoutErr(ServiceCommon, 1, "Request timed out", "请求超时")
)

// DocQA 业务错误
var (
	// ErrEmptyInput: blank document text or blank question.
	ErrEmptyInput = NewRequestErr(ServiceDocQA, 1, "Input must not be empty", "输入内容不能为空")

	// ErrExtraction: the uploaded document yielded no text.
	ErrExtraction = NewRequestErr(ServiceDocQA, 2, "Document text extraction failed", "文档文本提取失败")

	// ErrUnsupportedDocument: the upload is not a document type the service accepts.
	ErrUnsupportedDocument = NewRequestErr(ServiceDocQA, 3, "Only PDF files are supported.", "仅支持 PDF 文件")

	// ErrIndexNotFound: a question was asked before any document was ingested.
	ErrIndexNotFound = NewConflictErr(ServiceDocQA, 1, "Please upload a PDF first.", "请先上传文档")

	// ErrProviderRateLimited: the embedding or chat provider reported quota exhaustion.
	ErrProviderRateLimited = NewRateLimitErr(ServiceDocQA, 1, "LLM quota exceeded. Please wait and try again.", "模型配额已用尽，请稍后重试")

	// ErrProviderFailed: any other embedding or chat provider failure.
	ErrProviderFailed = NewNetworkErr(ServiceDocQA, 1, "LLM provider request failed", "模型服务调用失败")

	// ErrInvariantViolation: internal consistency check failed (e.g. chunk/embedding count mismatch).
	ErrInvariantViolation = NewInternalErr(ServiceDocQA, 1, "Index invariant violated", "索引一致性校验失败")
)
