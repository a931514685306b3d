package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sacco/internal/mpesa"
	"sacco/internal/payflow"
	"sacco/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTxStore struct {
	mu  sync.Mutex
	txs map[string]*store.Transaction
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{txs: map[string]*store.Transaction{}}
}

func (s *fakeTxStore) Create(_ context.Context, tx *store.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.Status == "" {
		tx.Status = store.TxPending
	}
	tx.CreatedAt = time.Now()
	copied := *tx
	s.txs[tx.CheckoutRequestID] = &copied
	return nil
}

func (s *fakeTxStore) GetByCheckoutID(_ context.Context, id string) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *tx
	return &copied, nil
}

func (s *fakeTxStore) MarkTerminal(_ context.Context, id, status, resultCode, receipt string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.Status != store.TxPending {
		return false, nil
	}
	tx.Status = status
	tx.ResultCode.String, tx.ResultCode.Valid = resultCode, true
	if receipt != "" {
		tx.MpesaReceipt.String, tx.MpesaReceipt.Valid = receipt, true
	}
	return true, nil
}

func (s *fakeTxStore) HasPendingForUser(_ context.Context, userID int64, category string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.UserID == userID && tx.Category == category && tx.Status == store.TxPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeTxStore) ListByUser(_ context.Context, userID int64, limit int) ([]store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID && len(out) < limit {
			out = append(out, *tx)
		}
	}
	return out, nil
}

type fakeSharesStore struct {
	mu      sync.Mutex
	credits map[string]int // reference -> count
}

func newFakeSharesStore() *fakeSharesStore {
	return &fakeSharesStore{credits: map[string]int{}}
}

func (s *fakeSharesStore) Credit(_ context.Context, _ int64, count int, _ decimal.Decimal, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.credits[reference]; dup {
		return nil
	}
	s.credits[reference] = count
	return nil
}

func (s *fakeSharesStore) Summary(_ context.Context, _ int64) (*store.ShareSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := &store.ShareSummary{}
	for _, count := range s.credits {
		summary.TotalShares += int64(count)
		summary.Purchases++
	}
	summary.TotalValue = payflow.ShareUnitValue.Mul(decimal.NewFromInt(summary.TotalShares))
	return summary, nil
}

func (s *fakeSharesStore) ListPurchases(_ context.Context, _ int64, _ int) ([]store.SharePurchase, error) {
	return nil, nil
}

func (s *fakeSharesStore) creditFor(reference string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.credits[reference]
	return count, ok
}

type stubGateway struct {
	mu       sync.Mutex
	pushRes  mpesa.StkPushResponse
	queryRes mpesa.StkQueryResponse
	queryErr error
	calls    int
}

func (g *stubGateway) STKPush(context.Context, mpesa.StkPushRequest) (mpesa.StkPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pushRes.CheckoutRequestID == "" {
		return mpesa.StkPushResponse{}, fmt.Errorf("not used")
	}
	return g.pushRes, nil
}

func (g *stubGateway) STKQuery(context.Context, string) (mpesa.StkQueryResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.queryRes, g.queryErr
}

func (g *stubGateway) queryCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestApp(txs *fakeTxStore, shares *fakeSharesStore, gw *stubGateway) *application {
	return &application{
		logger:  zap.NewNop().Sugar(),
		gateway: gw,
		store: store.Storage{
			Transactions: txs,
			Shares:       shares,
		},
	}
}

func seedPendingShares(t *testing.T, txs *fakeTxStore, checkoutID string, userID int64, count int) {
	t.Helper()
	err := txs.Create(context.Background(), &store.Transaction{
		UserID:            userID,
		Category:          string(payflow.CategoryShares),
		Amount:            payflow.AmountForShares(count),
		Phone:             "254712345678",
		CheckoutRequestID: checkoutID,
	})
	require.NoError(t, err)
}

func callbackBody(checkoutID string, resultCode int, receipt string) []byte {
	items := ""
	if receipt != "" {
		items = fmt.Sprintf(`{"Name":"MpesaReceiptNumber","Value":%q}`, receipt)
	}
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "MR1",
				"CheckoutRequestID": %q,
				"ResultCode": %d,
				"ResultDesc": "whatever",
				"CallbackMetadata": {"Item": [%s]}
			}
		}
	}`, checkoutID, resultCode, items))
}

func TestMpesaCallbackSettlesAndCreditsOnce(t *testing.T) {
	txs := newFakeTxStore()
	shares := newFakeSharesStore()
	app := newTestApp(txs, shares, &stubGateway{})
	seedPendingShares(t, txs, "CHK100", 7, 5)

	body := callbackBody("CHK100", 0, "QBC12345")

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", bytes.NewReader(body))
		app.mpesaCallbackHandler(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tx, err := txs.GetByCheckoutID(context.Background(), "CHK100")
	require.NoError(t, err)
	assert.Equal(t, store.TxCompleted, tx.Status)
	assert.Equal(t, "0", tx.ResultCode.String)
	assert.Equal(t, "QBC12345", tx.MpesaReceipt.String)

	count, credited := shares.creditFor("CHK100")
	require.True(t, credited)
	assert.Equal(t, 5, count)
	assert.Len(t, shares.credits, 1)
}

func TestMpesaCallbackFailureDoesNotCredit(t *testing.T) {
	txs := newFakeTxStore()
	shares := newFakeSharesStore()
	app := newTestApp(txs, shares, &stubGateway{})
	seedPendingShares(t, txs, "CHK101", 7, 3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback",
		bytes.NewReader(callbackBody("CHK101", 1032, "")))
	app.mpesaCallbackHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	tx, err := txs.GetByCheckoutID(context.Background(), "CHK101")
	require.NoError(t, err)
	assert.Equal(t, store.TxCancelled, tx.Status)

	_, credited := shares.creditFor("CHK101")
	assert.False(t, credited)
}

func TestMpesaCallbackMissingCheckoutID(t *testing.T) {
	app := newTestApp(newFakeTxStore(), newFakeSharesStore(), &stubGateway{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback",
		bytes.NewReader([]byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`)))
	app.mpesaCallbackHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMpesaCallbackMissingResultCodeDoesNotSettle(t *testing.T) {
	txs := newFakeTxStore()
	shares := newFakeSharesStore()
	app := newTestApp(txs, shares, &stubGateway{})
	seedPendingShares(t, txs, "CHK102", 7, 5)

	// Without a ResultCode the int zero value would read as success, so
	// the body must be rejected outright, not classified.
	body := []byte(fmt.Sprintf(
		`{"Body":{"stkCallback":{"MerchantRequestID":"MR1","CheckoutRequestID":%q,"ResultDesc":"whatever"}}}`,
		"CHK102"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", bytes.NewReader(body))
	app.mpesaCallbackHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tx, err := txs.GetByCheckoutID(context.Background(), "CHK102")
	require.NoError(t, err)
	assert.Equal(t, store.TxPending, tx.Status)

	_, credited := shares.creditFor("CHK102")
	assert.False(t, credited)
}

func statusRequest(user *store.User, checkoutID string) *http.Request {
	body, _ := json.Marshal(PaymentStatusPayload{CheckoutRequestID: checkoutID})
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/status", bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), userCtx, user)
	return req.WithContext(ctx)
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) PaymentStatusResponse {
	t.Helper()
	var envelope struct {
		Data PaymentStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestPaymentStatusAnswersFromStore(t *testing.T) {
	txs := newFakeTxStore()
	gw := &stubGateway{}
	app := newTestApp(txs, newFakeSharesStore(), gw)
	seedPendingShares(t, txs, "CHK200", 7, 2)

	_, err := txs.MarkTerminal(context.Background(), "CHK200", store.TxFailed, mpesa.CodeWrongPIN, "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.paymentStatusHandler(rec, statusRequest(&store.User{ID: 7}, "CHK200"))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeStatus(t, rec)
	assert.Equal(t, string(mpesa.StatusFailed), got.Status)
	assert.Equal(t, "Wrong M-Pesa PIN entered. Please try again with the correct PIN.", got.Message)
	assert.True(t, got.RetryAllowed)
	assert.Zero(t, gw.queryCalls(), "settled payments must not hit the provider")
}

func TestPaymentStatusPendingSettlesOnTerminalAnswer(t *testing.T) {
	txs := newFakeTxStore()
	shares := newFakeSharesStore()
	gw := &stubGateway{queryRes: mpesa.StkQueryResponse{ResultCode: mpesa.CodeSuccess}}
	app := newTestApp(txs, shares, gw)
	seedPendingShares(t, txs, "CHK201", 7, 4)

	rec := httptest.NewRecorder()
	app.paymentStatusHandler(rec, statusRequest(&store.User{ID: 7}, "CHK201"))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeStatus(t, rec)
	assert.Equal(t, string(mpesa.StatusCompleted), got.Status)
	assert.Equal(t, 1, gw.queryCalls())

	tx, err := txs.GetByCheckoutID(context.Background(), "CHK201")
	require.NoError(t, err)
	assert.Equal(t, store.TxCompleted, tx.Status)

	count, credited := shares.creditFor("CHK201")
	require.True(t, credited)
	assert.Equal(t, 4, count)
}

func TestPaymentStatusPendingStaysPendingOnNoAnswer(t *testing.T) {
	txs := newFakeTxStore()
	gw := &stubGateway{queryRes: mpesa.StkQueryResponse{ResultCode: "None"}}
	app := newTestApp(txs, newFakeSharesStore(), gw)
	seedPendingShares(t, txs, "CHK202", 7, 1)

	rec := httptest.NewRecorder()
	app.paymentStatusHandler(rec, statusRequest(&store.User{ID: 7}, "CHK202"))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeStatus(t, rec)
	assert.Equal(t, string(mpesa.StatusPending), got.Status)

	tx, err := txs.GetByCheckoutID(context.Background(), "CHK202")
	require.NoError(t, err)
	assert.Equal(t, store.TxPending, tx.Status)
}

// gatedTxStore holds Create until the gate opens and reports every
// MarkTerminal call, so a terminal outcome can be forced to arrive before
// the pending row exists.
type gatedTxStore struct {
	*fakeTxStore
	createGate chan struct{}
	marks      chan bool
}

func (s *gatedTxStore) Create(ctx context.Context, tx *store.Transaction) error {
	<-s.createGate
	return s.fakeTxStore.Create(ctx, tx)
}

func (s *gatedTxStore) MarkTerminal(ctx context.Context, id, status, resultCode, receipt string) (bool, error) {
	flipped, err := s.fakeTxStore.MarkTerminal(ctx, id, status, resultCode, receipt)
	s.marks <- flipped
	return flipped, err
}

func TestStartPaymentSettlesOutcomeThatBeatsTheInsert(t *testing.T) {
	txs := &gatedTxStore{
		fakeTxStore: newFakeTxStore(),
		createGate:  make(chan struct{}),
		marks:       make(chan bool, 2),
	}
	shares := newFakeSharesStore()
	gw := &stubGateway{
		pushRes:  mpesa.StkPushResponse{CheckoutRequestID: "CHK300", MerchantRequestID: "MR300"},
		queryRes: mpesa.StkQueryResponse{ResultCode: mpesa.CodeSuccess},
	}

	logger := zap.NewNop().Sugar()
	poller := payflow.NewPoller(gw, logger)
	poller.Interval = 5 * time.Millisecond
	app := &application{
		logger:    logger,
		gateway:   gw,
		initiator: payflow.NewInitiator(gw, logger),
		poller:    poller,
		store: store.Storage{
			Transactions: txs,
			Shares:       shares,
		},
	}

	user := &store.User{ID: 7, RegistrationPaid: true}
	req := payflow.Request{
		Category: payflow.CategoryShares,
		Phone:    "0712345678",
		Amount:   payflow.AmountForShares(5),
	}

	done := make(chan error, 1)
	go func() {
		_, err := app.startPayment(context.Background(), user, req)
		done <- err
	}()

	// The provider answers terminal while Create is still held back, so
	// the first settlement finds nothing to flip.
	flipped := <-txs.marks
	assert.False(t, flipped)

	close(txs.createGate)
	require.NoError(t, <-done)

	flipped = <-txs.marks
	assert.True(t, flipped, "settlement must be retried once the row exists")

	tx, err := txs.GetByCheckoutID(context.Background(), "CHK300")
	require.NoError(t, err)
	assert.Equal(t, store.TxCompleted, tx.Status)

	count, credited := shares.creditFor("CHK300")
	require.True(t, credited)
	assert.Equal(t, 5, count)
}

func TestPaymentStatusHidesOtherMembersPayments(t *testing.T) {
	txs := newFakeTxStore()
	app := newTestApp(txs, newFakeSharesStore(), &stubGateway{})
	seedPendingShares(t, txs, "CHK203", 42, 1)

	rec := httptest.NewRecorder()
	app.paymentStatusHandler(rec, statusRequest(&store.User{ID: 7}, "CHK203"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
