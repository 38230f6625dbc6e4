package router

import (
	"encoding/json"
	"net/http"
)

// Error codes mirror the upstream REST error convention.
const (
	codeInvalidSymbol = -1121
	codeIllegalParam  = -1100
)

// writeJSON marshals v and writes it with status and proper headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

// writeAPIError writes the {code, msg} error body clients expect.
func writeAPIError(w http.ResponseWriter, status int, code int, msg string) {
	type errorResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	writeJSON(w, status, errorResp{Code: code, Msg: msg})
}
