package webhook

import (
	"net/http"
)

// Response is the transport-independent view of an HTTP response.
type Response struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// Successful reports whether the status code is in the 2xx range.
func (r *Response) Successful() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       append([]byte(nil), r.Body...),
	}
}

// Outcome is the result of a single attempt: either a success carrying the
// response, or a failure carrying an ErrorKind and, for HTTP errors, the response.
// Build it with Succeeded or Failed so exactly one variant is populated.
type Outcome struct {
	response     *Response
	errorKind    ErrorKind
	errorMessage string
}

// Succeeded creates a success outcome.
func Succeeded(resp *Response) Outcome {
	if resp == nil {
		resp = &Response{StatusCode: http.StatusOK}
	}
	return Outcome{response: resp}
}

// Failed creates a failure outcome. resp may be nil when no response was received.
func Failed(kind ErrorKind, message string, resp *Response) Outcome {
	if kind == "" {
		kind = ErrorKindTransport
	}
	return Outcome{response: resp, errorKind: kind, errorMessage: message}
}

// IsSuccess reports whether the attempt succeeded.
func (o Outcome) IsSuccess() bool {
	return o.errorKind == ""
}

// Response returns the captured response, or nil for transport failures.
func (o Outcome) Response() *Response {
	return o.response
}

// ErrorKind is empty for successful outcomes.
func (o Outcome) ErrorKind() ErrorKind {
	return o.errorKind
}

// ErrorMessage is empty for successful outcomes.
func (o Outcome) ErrorMessage() string {
	return o.errorMessage
}

// StatusCode returns the response status, or 0 when there is no response.
func (o Outcome) StatusCode() int {
	if o.response == nil {
		return 0
	}
	return o.response.StatusCode
}
