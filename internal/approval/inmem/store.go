// Package inmem provides an in-memory implementation of approval.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation backed by the configured database.
package inmem

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/orchestrator/internal/model"
)

// Store is an in-memory implementation of approval.Store. It is safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	byID     map[string]model.ApprovalRequest
	byApprov map[string]string
	byReject map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:     make(map[string]model.ApprovalRequest),
		byApprov: make(map[string]string),
		byReject: make(map[string]string),
	}
}

// Insert implements approval.Store.
func (s *Store) Insert(_ context.Context, req model.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[req.ID] = req
	s.byApprov[req.ApproveToken] = req.ID
	s.byReject[req.RejectToken] = req.ID
	return nil
}

// Get implements approval.Store.
func (s *Store) Get(_ context.Context, id string) (model.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return model.ApprovalRequest{}, errNotFound{id: id}
	}
	return req, nil
}

// GetByApproveToken implements approval.Store. The map index narrows the
// candidate to one record, but the actual match (§4.8: tokens "compared
// with constant-time equality") is decided by subtle.ConstantTimeCompare
// against the stored token, not by the map's own hash lookup.
func (s *Store) GetByApproveToken(ctx context.Context, token string) (model.ApprovalRequest, error) {
	s.mu.Lock()
	id, ok := s.byApprov[token]
	s.mu.Unlock()
	if !ok {
		return model.ApprovalRequest{}, errNotFound{id: token}
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return model.ApprovalRequest{}, err
	}
	if subtle.ConstantTimeCompare([]byte(req.ApproveToken), []byte(token)) != 1 {
		return model.ApprovalRequest{}, errNotFound{id: token}
	}
	return req, nil
}

// GetByRejectToken implements approval.Store, with the same
// constant-time verification as GetByApproveToken.
func (s *Store) GetByRejectToken(ctx context.Context, token string) (model.ApprovalRequest, error) {
	s.mu.Lock()
	id, ok := s.byReject[token]
	s.mu.Unlock()
	if !ok {
		return model.ApprovalRequest{}, errNotFound{id: token}
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return model.ApprovalRequest{}, err
	}
	if subtle.ConstantTimeCompare([]byte(req.RejectToken), []byte(token)) != 1 {
		return model.ApprovalRequest{}, errNotFound{id: token}
	}
	return req, nil
}

// CompareAndResolve implements approval.Store.
func (s *Store) CompareAndResolve(_ context.Context, id string, update model.ApprovalRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[id]
	if !ok {
		return false, errNotFound{id: id}
	}
	if current.Status != model.ApprovalPending {
		return false, nil
	}
	s.byID[id] = update
	return true, nil
}

// ClearPendingSignal implements approval.Store.
func (s *Store) ClearPendingSignal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return errNotFound{id: id}
	}
	req.PendingSignal = false
	s.byID[id] = req
	return nil
}

// ListExpirable implements approval.Store.
func (s *Store) ListExpirable(_ context.Context, asOf time.Time) ([]model.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range s.byID {
		if req.Status == model.ApprovalPending && req.TimeoutAt != nil && !req.TimeoutAt.After(asOf) {
			out = append(out, req)
		}
	}
	return out, nil
}

// List implements approval.Store.
func (s *Store) List(_ context.Context, organizationID string) ([]model.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ApprovalRequest, 0, len(s.byID))
	for _, req := range s.byID {
		if organizationID != "" && req.OrganizationID != organizationID {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type errNotFound struct{ id string }

func (e errNotFound) Error() string { return "approval: not found" }
