package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"zelenka/internal/auth"
	"zelenka/internal/repository"
	"zelenka/internal/service"
	"zelenka/internal/storage"
)

const (
	userToken  = "user:1"
	adminToken = "admin:9"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	store := repository.NewMemoryStore()
	ordersRepo := repository.NewMemoryOrders(store)
	cartsRepo := repository.NewMemoryCarts(store)
	categoriesRepo := repository.NewMemoryCategories(store)
	prescRepo := repository.NewMemoryPrescriptions(store)
	feedbackRepo := repository.NewMemoryFeedback(store)
	tx := repository.NewMemoryTx(store)
	ledger := service.NewInventoryLedger(store)
	blobs, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)

	productsSvc := service.NewProductService(store, categoriesRepo, ordersRepo, ledger)
	cartsSvc := service.NewCartService(cartsRepo, store)
	ordersSvc := service.NewOrderService(store, ordersRepo, cartsRepo, ledger, tx)
	prescriptionsSvc := service.NewPrescriptionService(prescRepo, ordersSvc, blobs, tx)
	feedbackSvc := service.NewFeedbackService(feedbackRepo, store)
	return NewServer(auth.DevVerifier{}, productsSvc, cartsSvc, ordersSvc, prescriptionsSvc, feedbackSvc)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func seedProduct(t *testing.T, s *Server, name, price string, stock int64) {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/products", adminToken, map[string]any{
		"name": name, "price": price, "stock": stock,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestAuth(t *testing.T) {
	s := setupServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/products", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// catalog writes are admin-only
	w = doJSON(t, s, http.MethodPost, "/api/v1/products", userToken, map[string]any{
		"name": "A", "price": "10", "stock": 1,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	// healthz is open
	w = doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProductFlow(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10.50", 5)

	w := doJSON(t, s, http.MethodGet, "/api/v1/products/1", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPut, "/api/v1/products/1", adminToken, map[string]any{
		"name": "Aspirin+", "price": "12.00",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/products?q=asp", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/products/1", adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/products/1", userToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCartAndOrderFlow(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10", 5)
	seedProduct(t, s, "Ibuprofen", "20", 5)

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", userToken, map[string]any{
		"product_id": 1, "quantity": 2,
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/items", userToken, map[string]any{
		"product_id": 2, "quantity": 1,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	// empty line_items orders the whole cart
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", userToken, map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		TotalAmount string `json:"total_amount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	require.Equal(t, "pending", order.Status)
	require.Equal(t, "40", order.TotalAmount)

	w = doJSON(t, s, http.MethodGet, "/api/v1/cart", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", w.Body.String())

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/1/tracking", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// strangers see neither the order nor may cancel it
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/1", "user:2", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/1/cancel", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// duplicate cancel is a no-op
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/1/cancel", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOrderInsufficientStockPayload(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10", 1)

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", userToken, map[string]any{
		"line_items": []map[string]any{{"product_id": 1, "quantity": 3}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var payload struct {
		ProductID int64 `json:"product_id"`
		Available int64 `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, int64(1), payload.ProductID)
	require.Equal(t, int64(1), payload.Available)
}

func TestOrderLifecycleTransitions(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10", 5)

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", userToken, map[string]any{
		"line_items": []map[string]any{{"product_id": 1, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// only admins drive the lifecycle
	w = doJSON(t, s, http.MethodPatch, "/api/v1/orders/1/status", userToken, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPatch, "/api/v1/orders/1/status", adminToken, map[string]any{"status": "shipped"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, s, http.MethodPatch, "/api/v1/orders/1/status", adminToken, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, w.Code)

	// processing orders cannot be cancelled
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/1/cancel", userToken, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestPrescriptionFlow(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Amoxicillin", "30", 10)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "rx.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("description", "monthly refill"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+userToken)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := doJSON(t, s, http.MethodPost, "/api/v1/prescriptions/1/process", adminToken, map[string]any{
		"status":   "approved",
		"products": []map[string]any{{"product_id": 1, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result struct {
		Order *struct {
			Status         string `json:"status"`
			PrescriptionID *int64 `json:"prescription_id"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.NotNil(t, result.Order)
	require.Equal(t, "pending", result.Order.Status)
	require.NotNil(t, result.Order.PrescriptionID)
	require.Equal(t, int64(1), *result.Order.PrescriptionID)

	// processed exactly once
	resp = doJSON(t, s, http.MethodPost, "/api/v1/prescriptions/1/process", adminToken, map[string]any{
		"status": "rejected",
	})
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestFeedbackFlow(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10", 1)

	// legacy simple form uses "message"
	w := doJSON(t, s, http.MethodPost, "/api/v1/feedback", userToken, map[string]any{
		"message": "great pharmacy",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, s, http.MethodPost, "/api/v1/feedback", userToken, map[string]any{
		"product_id": 1, "rating": 5, "comment": "works",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/feedback", userToken, map[string]any{
		"product_id": 1, "rating": 9, "comment": "nope",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/feedback", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10", 5)
	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", userToken, map[string]any{
		"line_items": []map[string]any{{"product_id": 1, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/admin/orders", userToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/admin/orders", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		TotalOrders int    `json:"total_orders"`
		TotalSales  string `json:"total_sales"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.TotalOrders)
	require.Equal(t, "20", stats.TotalSales)
}

func TestStockAdjustment(t *testing.T) {
	s := setupServer(t)
	seedProduct(t, s, "Aspirin", "10", 5)

	// stock in the update body is rejected, not silently dropped
	w := doJSON(t, s, http.MethodPut, "/api/v1/products/1", adminToken, map[string]any{
		"name": "Aspirin", "price": "10", "stock": 50,
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = doJSON(t, s, http.MethodPost, "/api/v1/products/1/stock", userToken, map[string]any{"delta": 5})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/products/1/stock", adminToken, map[string]any{"delta": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p struct {
		Stock int64 `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.EqualValues(t, 10, p.Stock)

	// write-off below zero reports the available remainder
	w = doJSON(t, s, http.MethodPost, "/api/v1/products/1/stock", adminToken, map[string]any{"delta": -20})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	var payload struct {
		Available int64 `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.EqualValues(t, 10, payload.Available)
}
