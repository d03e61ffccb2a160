package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/markjakearzadon/mpesa-gobackend/internal/db"
	"github.com/markjakearzadon/mpesa-gobackend/internal/events"
	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/markjakearzadon/mpesa-gobackend/internal/mpesa"
)

// memStore mirrors the Mongo store's semantics in memory.
type memStore struct {
	mu        sync.Mutex
	txs       map[string]models.Transaction
	inserts   int
	insertErr error
	updateErr error
	findErr   error
	lastLimit int64
}

func newMemStore() *memStore {
	return &memStore{txs: map[string]models.Transaction{}}
}

func (m *memStore) Insert(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.txs[tx.ID]; ok {
		return errors.New("duplicate key")
	}
	m.txs[tx.ID] = *tx
	m.inserts++
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, checkoutRequestID string, status models.Status, resultDesc string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	for id, tx := range m.txs {
		if tx.CheckoutRequestID == checkoutRequestID {
			tx.Status = status
			tx.ResultDesc = resultDesc
			m.txs[id] = tx
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memStore) Find(_ context.Context, f db.Filter) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.lastLimit = f.Limit
	out := []models.Transaction{}
	for _, tx := range m.txs {
		if f.Status != nil && tx.Status != *f.Status {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) get(id string) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id]
}

type fakeGateway struct {
	token      string
	tokenErr   error
	resp       *mpesa.PushResponse
	pushErr    error
	pushCalls  int
	lastPush   mpesa.PushRequest
	lastBearer string
}

func (g *fakeGateway) AccessToken(context.Context) (string, error) {
	return g.token, g.tokenErr
}

func (g *fakeGateway) StkPush(_ context.Context, token string, req mpesa.PushRequest) (*mpesa.PushResponse, error) {
	g.pushCalls++
	g.lastBearer = token
	g.lastPush = req
	return g.resp, g.pushErr
}

func acceptingGateway(checkoutID string) *fakeGateway {
	return &fakeGateway{
		token: "tok",
		resp: &mpesa.PushResponse{
			HTTPStatus:        200,
			MerchantRequestID: "29115-34620561-1",
			CheckoutRequestID: checkoutID,
			ResponseCode:      "0",
		},
	}
}

type recordingPublisher struct {
	events []events.PaymentResult
	err    error
}

func (p *recordingPublisher) PublishPaymentResult(_ context.Context, e events.PaymentResult) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }
