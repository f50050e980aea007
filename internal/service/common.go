package service

import "fmt"

// ErrorBody is the uniform error response shape.
type ErrorBody struct {
	Error string `json:"error"`
}

func errorBody(code string) ErrorBody {
	return ErrorBody{Error: code}
}

func errorBodyf(format string, args ...any) ErrorBody {
	return ErrorBody{Error: fmt.Sprintf(format, args...)}
}
