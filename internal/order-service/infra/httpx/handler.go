package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
	"github.com/jcmexdev/resilient-orders/internal/order-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/order-service/ports"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors/constants"
)

// Handler serves the order HTTP API on top of the order service.
type Handler struct {
	orderService ports.OrderService
	logger       *slog.Logger
}

func NewHandler(os ports.OrderService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orderService: os, logger: logger}
}

// CreateOrder validates the request and runs the order to a terminal
// status before answering.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, OrderResponse{
			Status:  string(domain.StatusFailed),
			Total:   "0",
			Reason:  string(domain.ReasonValidation),
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	items := make([]domain.LineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.LineItem{ItemID: it.ItemID, Quantity: it.Quantity, Price: it.Price}
	}

	requestID, _ := r.Context().Value(constants.ContextKeyRequestID).(string)
	h.logger.InfoContext(r.Context(), "creating order", "request_id", requestID, "items", len(items))

	order, err := h.orderService.PlaceOrder(r.Context(), items)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, OrderResponse{
				Status:  string(domain.StatusFailed),
				Total:   "0",
				Reason:  string(domain.ReasonValidation),
				Message: err.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, statusCode(order), mapOrderToResponse(order))
}

// GetOrderByID returns the current record of an order.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	rows, err := h.orderService.Journal(r.Context(), chi.URLParam(r, "orderId"))
	switch {
	case errors.Is(err, ports.ErrJournalDisabled):
		writeError(w, http.StatusNotFound, "journal_disabled", err.Error())
		return
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, sagalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}

	out := make([]JournalEntryResponse, len(rows))
	for i, row := range rows {
		out[i] = JournalEntryResponse{
			Status:      string(row.Status),
			CurrentStep: row.CurrentStep,
			Payload:     row.Payload,
			Errors:      row.Errors(),
			TraceID:     row.TraceID,
			SpanID:      row.SpanID,
			UpdatedAt:   row.UpdatedAt.Format(time.RFC3339Nano),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCircuitStatus reports every dependency under "<name>_circuit".
func (h *Handler) GetCircuitStatus(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]CircuitResponse)
	for _, st := range h.orderService.CircuitStatus(r.Context()) {
		out[st.Dependency+"_circuit"] = mapCircuit(st)
	}
	writeJSON(w, http.StatusOK, out)
}

// SetCircuitMode forces a breaker open or closed, returns it to automatic
// operation or resets it.
func (h *Handler) SetCircuitMode(w http.ResponseWriter, r *http.Request) {
	dependency := chi.URLParam(r, "dependency")
	mode := ports.CircuitMode(chi.URLParam(r, "mode"))

	st, err := h.orderService.SetCircuitMode(r.Context(), dependency, mode)
	switch {
	case errors.Is(err, ports.ErrUnknownDependency):
		writeError(w, http.StatusNotFound, "unknown_dependency", err.Error())
		return
	case errors.Is(err, ports.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "unknown_mode", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "circuit_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapCircuit(st))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":   "order-service",
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusCode maps a terminal order to its HTTP status.
func statusCode(order *domain.Order) int {
	switch {
	case order.Status == domain.StatusCompleted:
		return http.StatusOK
	case order.Reason.FastFail():
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func mapOrderToResponse(order *domain.Order) OrderResponse {
	res := OrderResponse{
		OrderID:   order.ID,
		Status:    string(order.Status),
		Total:     json.Number(order.Total.String()),
		Reason:    string(order.Reason),
		Message:   order.Message,
		Items:     make([]OrderItemResponse, len(order.Items)),
		CreatedAt: order.CreatedAt.Format(time.RFC3339Nano),
	}
	if !order.FinishedAt.IsZero() {
		res.FinishedAt = order.FinishedAt.Format(time.RFC3339Nano)
	}
	for i, it := range order.Items {
		res.Items[i] = OrderItemResponse{ItemID: it.ItemID, Quantity: it.Quantity, Price: json.Number(it.Price.String())}
	}
	for _, s := range order.Steps {
		res.Steps = append(res.Steps, StepResponse{
			Name:   s.Name,
			Status: string(s.Status),
			Error:  s.Error,
			At:     s.At.Format(time.RFC3339Nano),
		})
	}
	return res
}

func mapCircuit(st ports.DependencyStatus) CircuitResponse {
	c := st.Circuit
	return CircuitResponse{
		Name:     c.Name,
		State:    c.State.String(),
		Value:    c.State.Code(),
		Override: c.Override.String(),
		Counts: CountsResponse{
			Requests:             c.Counts.Requests,
			TotalSuccesses:       c.Counts.TotalSuccesses,
			TotalFailures:        c.Counts.TotalFailures,
			ConsecutiveSuccesses: c.Counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  c.Counts.ConsecutiveFailures,
		},
		Bulkhead: BulkheadResponse{
			Name:     st.Bulkhead.Name,
			Capacity: st.Bulkhead.Capacity,
			Active:   st.Bulkhead.Occupancy,
		},
		CallTimeoutMS: st.CallTimeout.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
