// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Request bodies and query parameters are validated with
// go-playground/validator before any storage or engine call.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/selvedge/tessera/internal/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ActivityRequest is the body of POST /api/v1/{tenant}/activities.
type ActivityRequest struct {
	UserID    string    `json:"user_id"    validate:"required,max=256"`
	ProductID string    `json:"product_id" validate:"required,max=256"`
	Type      string    `json:"type"       validate:"required,max=64"`
	At        time.Time `json:"at"`
}

// ImpressionRequest is the body of POST /api/v1/{tenant}/impressions.
type ImpressionRequest struct {
	UserID    string    `json:"user_id"    validate:"required,max=256"`
	ProductID string    `json:"product_id" validate:"required,max=256"`
	At        time.Time `json:"at"`
}

// ProductRequest is the body of PUT /api/v1/{tenant}/products/{id}.
// The product id comes from the URL path.
type ProductRequest struct {
	Attributes map[string]engine.AttrValue `json:"attributes" validate:"max=128"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// RecommendRequest holds the parsed query parameters of
// GET /api/v1/{tenant}/recommendations.
type RecommendRequest struct {
	UserID    string `validate:"required,max=256"`
	Algorithm string `validate:"required,max=32"`
	Count     int    `validate:"min=0,max=10000"`
	Filter    string
}

// parseRecommendRequest extracts and validates the recommendation query
// parameters. The filter parameter carries a JSON constraint document.
func parseRecommendRequest(r *http.Request) (RecommendRequest, *APIError) {
	req := RecommendRequest{
		UserID:    r.URL.Query().Get("user"),
		Algorithm: r.URL.Query().Get("algorithm"),
		Filter:    r.URL.Query().Get("filter"),
	}
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, &APIError{Code: ErrCodeBadRequest, Message: "count must be an integer"}
		}
		req.Count = n
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		return req, apiErr
	}
	return req, nil
}

// filterDoc parses the optional filter query parameter.
func (req RecommendRequest) filterDoc() (engine.FilterDoc, error) {
	if req.Filter == "" {
		return nil, nil
	}
	var doc engine.FilterDoc
	if err := json.Unmarshal([]byte(req.Filter), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// decodeBody decodes and validates a JSON request body into v.
// Unknown fields are rejected so schema typos fail loudly.
func decodeBody(r *http.Request, v interface{}) *APIError {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &APIError{Code: ErrCodeBadRequest, Message: "invalid JSON body: " + err.Error()}
	}
	return validateRequest(v)
}

// validateRequest runs validator tags and converts failures into a
// field-keyed details map.
func validateRequest(v interface{}) *APIError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" failed "+fe.Tag())
		}
	}
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "request validation failed",
		Details: fields,
	}
}
