package server

import (
	"encoding/json"
	"net/http"

	"flashliquidity/native/flashloan"
)

var statusByCode = map[string]int{
	"invalid_collateral_kind":   http.StatusBadRequest,
	"unsupported_collateral":    http.StatusBadRequest,
	"invalid_amount":            http.StatusBadRequest,
	"too_many_collaterals":      http.StatusBadRequest,
	"invalid_timestamp":         http.StatusBadRequest,
	"unauthorized":              http.StatusForbidden,
	"staker_not_found":          http.StatusNotFound,
	"loan_not_found":            http.StatusNotFound,
	"vault_not_found":           http.StatusNotFound,
	"reentrancy":                http.StatusConflict,
	"borrow_in_progress":        http.StatusConflict,
	"loan_not_active":           http.StatusConflict,
	"loan_not_overdue":          http.StatusConflict,
	"staking_locked":            http.StatusConflict,
	"already_initialised":       http.StatusConflict,
	"borrow_exceeds_collateral": http.StatusUnprocessableEntity,
	"insufficient_staked":       http.StatusUnprocessableEntity,
	"repayment_insufficient":    http.StatusUnprocessableEntity,
	"arithmetic_overflow":       http.StatusUnprocessableEntity,
	"arithmetic_underflow":      http.StatusUnprocessableEntity,
	"division_by_zero":          http.StatusUnprocessableEntity,
	"custody_failed":            http.StatusUnprocessableEntity,
	"callback_failed":           http.StatusBadGateway,
	"oracle_unavailable":        http.StatusServiceUnavailable,
	"module_paused":             http.StatusServiceUnavailable,
	"not_initialised":           http.StatusServiceUnavailable,
}

// StatusFor maps an engine error to the HTTP status returned to clients.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[flashloan.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]problem{"error": {Code: code, Message: message}})
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeProblem(w, status, flashloan.Code(err), message)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
