package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/auth"
	"github.com/Jamolkhon5/aistudio/internal/repository"
	"github.com/Jamolkhon5/aistudio/internal/storage"
)

const maxBodySize = 1 << 20

// ErrBadRequest - тело или параметры запроса не разобраны.
var ErrBadRequest = errors.New("bad request")

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: [HTTP] failed to encode response: %v", err)
	}
}

// WriteErrorStatus отдает ошибку с явным статусом.
func WriteErrorStatus(w http.ResponseWriter, status int, msg string, details any) {
	WriteJSON(w, status, errorBody{Error: msg, Details: details})
}

// WriteError переводит ошибку слоя данных или шлюза в HTTP-статус.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr     *gateway.APIError
		storageErr *storage.StorageError
	)
	switch {
	case errors.Is(err, ErrBadRequest):
		WriteErrorStatus(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, repository.ErrNotFound):
		WriteErrorStatus(w, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, repository.ErrInvalidMessage):
		WriteErrorStatus(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, storage.ErrForbiddenHost), errors.Is(err, storage.ErrNotImage):
		WriteErrorStatus(w, http.StatusBadRequest, "Source is not an allowed image", err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		WriteErrorStatus(w, http.StatusRequestEntityTooLarge, "Source image is too large", err.Error())
	case errors.Is(err, gateway.ErrMissingAPIKey):
		WriteErrorStatus(w, http.StatusServiceUnavailable, "AI gateway is not configured", err.Error())
	case errors.Is(err, gateway.ErrUnsupportedAppType):
		WriteErrorStatus(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &apiErr):
		WriteErrorStatus(w, http.StatusBadGateway, "AI gateway request failed", apiErr)
	case errors.Is(err, gateway.ErrRequestFailed), errors.Is(err, gateway.ErrParseFailed):
		WriteErrorStatus(w, http.StatusBadGateway, "AI gateway request failed", err.Error())
	case errors.As(err, &storageErr):
		WriteErrorStatus(w, http.StatusBadGateway, "Storage request failed", storageErr.Message)
	default:
		log.Printf("ERROR: [HTTP] %s %s: %v", r.Method, r.URL.Path, err)
		WriteErrorStatus(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// Decode читает JSON-тело запроса не больше maxBodySize.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	return nil
}

// User возвращает пользователя запроса. Маршруты без auth.Middleware получают 401.
func User(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		WriteErrorStatus(w, http.StatusUnauthorized, "Unauthorized", nil)
	}
	return userID, ok
}
