package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
	LotID     string `json:"lot_id,omitempty"`
	Shortfall int64  `json:"shortfall,omitempty"`
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindPrecondition:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusOf(kind)
	body := errorBody{Error: err.Error(), Code: kind.String()}
	var ise *apperr.InsufficientStockError
	if errors.As(err, &ise) {
		body.ProductID, body.LotID, body.Shortfall = ise.ProductID, ise.LotID, ise.Shortfall
	}
	if code >= http.StatusInternalServerError {
		h.log().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		if kind == apperr.KindInternal {
			body.Error = "internal error"
		}
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: apperr.KindInvalid.String()})
}
