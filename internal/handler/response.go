package handler

// Response is the envelope most API endpoints return. Contact and call reads
// carry their payload in Data; failures carry a human-readable Message. The
// launch endpoint and the provider webhook return their own bodies instead,
// since external callers depend on those exact shapes.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}
