package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
)

// validate is shared; validator caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

const dateLayout = "2006-01-02"

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps domain errors to HTTP status codes
// validation→400, not found→404, active evaluation→409, 그 외 500
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case contracts.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case contracts.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, contracts.ErrActiveEvaluation):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody decodes a JSON body into dst and runs struct validation
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return contracts.NewValidationError("body", "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator field errors into one ValidationError
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return contracts.NewValidationError("body", err.Error())
	}

	fields := make([]string, 0, len(fieldErrs))
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return contracts.NewValidationError(strings.Join(fields, ","), strings.Join(msgs, "; "))
}
