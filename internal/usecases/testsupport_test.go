package usecases

import (
	"context"
	"errors"
	"sync"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

// fakeModel returns scripted responses in order and records every request.
type fakeModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []interfaces.ChatRequest
}

func (m *fakeModel) ChatCompletion(_ context.Context, req interfaces.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *fakeModel) lastRequest() interfaces.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// fakeStore is an in-memory CandidateStore. Reads hand out copies so tests
// mirror the real repository's read-reload behavior.
type fakeStore struct {
	mu         sync.Mutex
	candidates map[string]*entities.Candidate
	nextID     int
	saveErr    error

	// onGetByPhone mutates the stored record before it is returned, to
	// simulate concurrent writers.
	onGetByPhone func(c *entities.Candidate)
}

func newFakeStore() *fakeStore {
	return &fakeStore{candidates: make(map[string]*entities.Candidate)}
}

func cloneCandidate(c *entities.Candidate) *entities.Candidate {
	cp := *c
	cp.History = append([]entities.HistoryEntry(nil), c.History...)
	cp.ProcessedMessageIDs = append([]string(nil), c.ProcessedMessageIDs...)
	return &cp
}

func (s *fakeStore) GetOrCreate(_ context.Context, phone string) (*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.candidates[phone]; ok {
		return cloneCandidate(c), nil
	}
	s.nextID++
	c := &entities.Candidate{
		ID:          s.nextID,
		Name:        "Unknown",
		Surname:     "Unknown",
		PhoneNumber: phone,
		Status:      entities.StatusSent,
	}
	s.candidates[phone] = c
	return cloneCandidate(c), nil
}

func (s *fakeStore) GetByPhone(_ context.Context, phone string) (*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[phone]
	if !ok {
		return nil, nil
	}
	if s.onGetByPhone != nil {
		s.onGetByPhone(c)
	}
	return cloneCandidate(c), nil
}

func (s *fakeStore) Create(_ context.Context, c *entities.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.PhoneNumber]; ok {
		return errors.New("duplicate phone number")
	}
	s.nextID++
	c.ID = s.nextID
	s.candidates[c.PhoneNumber] = cloneCandidate(c)
	return nil
}

func (s *fakeStore) Save(_ context.Context, c *entities.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	stored, ok := s.candidates[c.PhoneNumber]
	if !ok {
		s.candidates[c.PhoneNumber] = cloneCandidate(c)
		return nil
	}
	cp := cloneCandidate(c)
	cp.ProcessedMessageIDs = stored.ProcessedMessageIDs
	s.candidates[c.PhoneNumber] = cp
	return nil
}

func (s *fakeStore) MarkProcessed(_ context.Context, phone, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[phone]
	if !ok {
		return false, nil
	}
	for _, id := range c.ProcessedMessageIDs {
		if id == messageID {
			return false, nil
		}
	}
	c.ProcessedMessageIDs = append(c.ProcessedMessageIDs, messageID)
	if len(c.ProcessedMessageIDs) > 100 {
		c.ProcessedMessageIDs = c.ProcessedMessageIDs[len(c.ProcessedMessageIDs)-100:]
	}
	return true, nil
}

func (s *fakeStore) Exists(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.candidates[phone]
	return ok, nil
}

func (s *fakeStore) ListByStatus(_ context.Context, status string) ([]*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Candidate
	for _, c := range s.candidates {
		if c.Status == status {
			out = append(out, cloneCandidate(c))
		}
	}
	return out, nil
}

func (s *fakeStore) ListWithHistory(_ context.Context) ([]*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Candidate
	for _, c := range s.candidates {
		if len(c.History) > 0 {
			out = append(out, cloneCandidate(c))
		}
	}
	return out, nil
}

func (s *fakeStore) ListAll(_ context.Context) ([]*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Candidate
	for _, c := range s.candidates {
		out = append(out, cloneCandidate(c))
	}
	return out, nil
}

func (s *fakeStore) stored(phone string) *entities.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[phone]
	if !ok {
		return nil
	}
	return cloneCandidate(c)
}

func (s *fakeStore) put(c *entities.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.PhoneNumber] = cloneCandidate(c)
}

type sentText struct {
	To   string
	Body string
}

type sentTemplate struct {
	To        string
	FirstName string
}

// fakeMessenger records outbound sends.
type fakeMessenger struct {
	mu          sync.Mutex
	texts       []sentText
	templates   []sentTemplate
	textErr     error
	templateErr error
}

func (m *fakeMessenger) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.textErr != nil {
		return m.textErr
	}
	m.texts = append(m.texts, sentText{To: to, Body: body})
	return nil
}

func (m *fakeMessenger) SendOnboardingTemplate(_ context.Context, to, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.templateErr != nil {
		return m.templateErr
	}
	m.templates = append(m.templates, sentTemplate{To: to, FirstName: firstName})
	return nil
}

func (m *fakeMessenger) sentTexts() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentText(nil), m.texts...)
}

func (m *fakeMessenger) sentTemplates() []sentTemplate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentTemplate(nil), m.templates...)
}

// fakeNotifier records escalation alerts.
type fakeNotifier struct {
	mu     sync.Mutex
	phones []string
}

func (n *fakeNotifier) NotifyEscalation(_ context.Context, c *entities.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.phones = append(n.phones, c.PhoneNumber)
	return nil
}

func (n *fakeNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.phones...)
}

// syncRunner executes jobs inline so tests stay deterministic.
type syncRunner struct{}

func (syncRunner) Enqueue(_ string, fn func(ctx context.Context)) {
	fn(context.Background())
}
