package extraction

// Reason classifies why an extraction attempt failed.
type Reason string

const (
	// ReasonSafetyBlocked means the provider refused the document on policy grounds.
	ReasonSafetyBlocked Reason = "safety_blocked"

	// ReasonQuotaExceeded means the provider rejected the call for quota/rate limits.
	ReasonQuotaExceeded Reason = "quota_exceeded"

	// ReasonUnparseableResponse means the model answered but the answer was not
	// usable JSON.
	ReasonUnparseableResponse Reason = "unparseable_response"

	// ReasonTransportError covers every other provider or network failure.
	ReasonTransportError Reason = "transport_error"
)

// Operator-facing messages surfaced verbatim into failure records.
var reasonMessages = map[Reason]string{
	ReasonSafetyBlocked:       "发票内容被安全策略拦截，请尝试使用更清晰的扫描件",
	ReasonQuotaExceeded:       "API 配额已耗尽，请稍后再试",
	ReasonUnparseableResponse: "模型返回的数据无法解析，请重试或更换模型",
}

// Error wraps a provider failure with its classification. The message shown to
// operators depends on the reason; the underlying error stays available for
// logs via Unwrap.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}
