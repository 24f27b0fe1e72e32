package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"guestlist/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

// memStore is an in-memory backing for the event, participant and activity fakes.
// Reads return copies so services only change stored state through repository calls.
type memStore struct {
	mu           sync.Mutex
	events       map[string]*domain.Event
	participants map[string]*domain.Participant
	order        []string
	activity     []*domain.ActivityLog
	nextID       int
	activityErr  error
	listErr      error
	locks        int
}

func newMemStore() *memStore {
	return &memStore{
		events:       make(map[string]*domain.Event),
		participants: make(map[string]*domain.Participant),
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) addEvent(ownerID string, maxParticipants *int, overbooking int) *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &domain.Event{ID: m.id("ev"), OwnerID: ownerID, Name: "Gophers Meetup", MaxParticipants: maxParticipants, OverbookingLimit: overbooking}
	m.events[e.ID] = e
	return e
}

func (m *memStore) participant(id string) *domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (m *memStore) byEmail(eventID, email string) *domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.EventID == eventID && p.Email == email {
			cp := *p
			return &cp
		}
	}
	return nil
}

// positions returns the sorted waitlist positions of an event.
func (m *memStore) positions(eventID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, p := range m.participants {
		if p.EventID == eventID && p.Status == domain.StatusWaitlisted && p.QueuePosition != nil {
			out = append(out, *p.QueuePosition)
		}
	}
	sort.Ints(out)
	return out
}

func (m *memStore) count(eventID string, status domain.ParticipantStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(eventID, status)
}

func (m *memStore) countLocked(eventID string, status domain.ParticipantStatus) int {
	n := 0
	for _, p := range m.participants {
		if p.EventID == eventID && p.Status == status {
			n++
		}
	}
	return n
}

// consistent reports whether every participant's queue position agrees with its status.
func (m *memStore) consistent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if (p.Status == domain.StatusWaitlisted) != (p.QueuePosition != nil) {
			return false
		}
	}
	return true
}

type fakeEventRepo struct{ *memStore }

func (f fakeEventRepo) Create(ctx context.Context, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = f.id("ev")
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f fakeEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f fakeEventRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	f.mu.Lock()
	f.locks++
	f.mu.Unlock()
	return f.GetByID(ctx, id)
}

func (f fakeEventRepo) ListByOwnerID(ctx context.Context, ownerID string) ([]*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Event
	for _, e := range f.events {
		if e.OwnerID == ownerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeEventRepo) Update(ctx context.Context, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[e.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f fakeEventRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.events, id)
	for pid, p := range f.participants {
		if p.EventID == id {
			delete(f.participants, pid)
		}
	}
	return nil
}

type fakeParticipantRepo struct{ *memStore }

func (f fakeParticipantRepo) Create(ctx context.Context, p *domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if existing.EventID == p.EventID && existing.Email == p.Email {
			return domain.ErrDuplicate
		}
	}
	p.ID = f.id("p")
	cp := *p
	f.participants[p.ID] = &cp
	f.order = append(f.order, p.ID)
	return nil
}

func (f fakeParticipantRepo) find(match func(*domain.Participant) bool) (*domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		p, ok := f.participants[id]
		if ok && match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f fakeParticipantRepo) GetByID(ctx context.Context, eventID, id string) (*domain.Participant, error) {
	return f.find(func(p *domain.Participant) bool { return p.EventID == eventID && p.ID == id })
}

func (f fakeParticipantRepo) GetByToken(ctx context.Context, token string) (*domain.Participant, error) {
	return f.find(func(p *domain.Participant) bool { return p.Token == token })
}

func (f fakeParticipantRepo) GetByEmail(ctx context.Context, eventID, email string) (*domain.Participant, error) {
	return f.find(func(p *domain.Participant) bool { return p.EventID == eventID && p.Email == email })
}

func matchesFilter(p *domain.Participant, filter domain.ParticipantFilter) bool {
	if len(filter.Statuses) > 0 {
		ok := false
		for _, st := range filter.Statuses {
			if p.Status == st {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if filter.Category != "" && p.Category != filter.Category {
		return false
	}
	if filter.Search != "" {
		q := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(p.Email, q) {
			return false
		}
	}
	return true
}

func (f fakeParticipantRepo) ListAll(ctx context.Context, eventID string, filter domain.ParticipantFilter) ([]*domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []*domain.Participant{}
	for _, id := range f.order {
		p, ok := f.participants[id]
		if ok && p.EventID == eventID && matchesFilter(p, filter) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeParticipantRepo) List(ctx context.Context, eventID string, filter domain.ParticipantFilter, params domain.PaginationParams) ([]*domain.Participant, int, error) {
	all, err := f.ListAll(ctx, eventID, filter)
	if err != nil {
		return nil, 0, err
	}
	start := params.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + params.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (f fakeParticipantRepo) ListWaitlist(ctx context.Context, eventID string) ([]*domain.Participant, error) {
	out, err := f.ListAll(ctx, eventID, domain.ParticipantFilter{Statuses: []domain.ParticipantStatus{domain.StatusWaitlisted}})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].QueuePosition < *out[j].QueuePosition })
	return out, nil
}

func (f fakeParticipantRepo) Update(ctx context.Context, p *domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.participants[p.ID]; !ok {
		return domain.ErrNotFound
	}
	for _, existing := range f.participants {
		if existing.ID != p.ID && existing.EventID == p.EventID && existing.Email == p.Email {
			return domain.ErrDuplicate
		}
	}
	cp := *p
	f.participants[p.ID] = &cp
	return nil
}

func (f fakeParticipantRepo) Delete(ctx context.Context, eventID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok || p.EventID != eventID {
		return domain.ErrNotFound
	}
	delete(f.participants, id)
	return nil
}

func (f fakeParticipantRepo) CountByStatus(ctx context.Context, eventID string, status domain.ParticipantStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countLocked(eventID, status), nil
}

func (f fakeParticipantRepo) MaxQueuePosition(ctx context.Context, eventID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxPos := 0
	for _, p := range f.participants {
		if p.EventID == eventID && p.QueuePosition != nil && *p.QueuePosition > maxPos {
			maxPos = *p.QueuePosition
		}
	}
	return maxPos, nil
}

func (f fakeParticipantRepo) FirstWaitlisted(ctx context.Context, eventID string) (*domain.Participant, error) {
	list, err := f.ListWaitlist(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (f fakeParticipantRepo) ShiftQueue(ctx context.Context, eventID string, from, to, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if from > to || delta == 0 {
		return nil
	}
	for _, p := range f.participants {
		if p.EventID == eventID && p.Status == domain.StatusWaitlisted && p.QueuePosition != nil &&
			*p.QueuePosition >= from && *p.QueuePosition <= to {
			v := *p.QueuePosition + delta
			p.QueuePosition = &v
		}
	}
	return nil
}

type fakeActivityRepo struct{ *memStore }

func (f fakeActivityRepo) Create(ctx context.Context, entry *domain.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activityErr != nil {
		return f.activityErr
	}
	entry.ID = f.id("act")
	f.activity = append(f.activity, entry)
	return nil
}

func (f fakeActivityRepo) ListByEventID(ctx context.Context, eventID string, params domain.PaginationParams) ([]*domain.ActivityLog, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ActivityLog
	for _, a := range f.activity {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memStore) actions(participantID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.activity {
		if a.ParticipantID == participantID {
			out = append(out, a.Action)
		}
	}
	return out
}

// fakeTx restores the participant table when fn fails, like a rollback.
type fakeTx struct{ *memStore }

func (f fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	snapshot := make(map[string]domain.Participant, len(f.participants))
	for id, p := range f.participants {
		snapshot[id] = *p
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.participants = make(map[string]*domain.Participant, len(snapshot))
		for id, p := range snapshot {
			cp := p
			f.participants[id] = &cp
		}
		f.mu.Unlock()
		return err
	}
	return nil
}

// fakeMailer records sends and replays scripted errors per recipient.
type fakeMailer struct {
	mu     sync.Mutex
	sent   []string
	calls  map[string]int
	script map[string][]error
	// beforeSend runs outside the lock ahead of every send.
	beforeSend func(to string)
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{calls: make(map[string]int), script: make(map[string][]error)}
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, html, text string) error {
	if f.beforeSend != nil {
		f.beforeSend(to)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to]++
	if errs := f.script[to]; len(errs) > 0 {
		err := errs[0]
		f.script[to] = errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}

// fakeQueueRepo is an in-memory EmailQueueRepository.
type fakeQueueRepo struct {
	mu         sync.Mutex
	items      []*domain.EmailQueueItem
	claimedAt  map[string]time.Time
	nextID     int
	enqueueErr error
}

func (f *fakeQueueRepo) Enqueue(ctx context.Context, items []*domain.EmailQueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	for _, it := range items {
		f.nextID++
		it.ID = fmt.Sprintf("q-%d", f.nextID)
		cp := *it
		f.items = append(f.items, &cp)
	}
	return nil
}

func (f *fakeQueueRepo) ClaimPending(ctx context.Context, limit int, claimedAt, staleBefore time.Time) ([]*domain.EmailQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimedAt == nil {
		f.claimedAt = make(map[string]time.Time)
	}
	var out []*domain.EmailQueueItem
	for _, it := range f.items {
		if it.Status != domain.QueuePending || len(out) >= limit {
			continue
		}
		if at, ok := f.claimedAt[it.ID]; ok && !at.Before(staleBefore) {
			continue
		}
		f.claimedAt[it.ID] = claimedAt
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

// settle moves an item to a terminal status behind the dispatcher's back.
func (f *fakeQueueRepo) settle(id string, status domain.QueueStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get(id).Status = status
}

func (f *fakeQueueRepo) get(id string) *domain.EmailQueueItem {
	for _, it := range f.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (f *fakeQueueRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.get(id)
	if it == nil || it.Status != domain.QueuePending {
		return domain.ErrNotFound
	}
	it.Status = domain.QueueSent
	it.SentAt = &sentAt
	return nil
}

func (f *fakeQueueRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.get(id)
	if it == nil || it.Status != domain.QueuePending {
		return domain.ErrNotFound
	}
	it.Status = domain.QueueFailed
	it.Error = &errMsg
	return nil
}

func (f *fakeQueueRepo) ListEmailsByMailing(ctx context.Context, mailingID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, it := range f.items {
		if it.MailingID == mailingID && !seen[it.ToEmail] {
			seen[it.ToEmail] = true
			out = append(out, it.ToEmail)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) StatsByMailing(ctx context.Context, mailingID string) (domain.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s domain.QueueStats
	for _, it := range f.items {
		if it.MailingID != mailingID {
			continue
		}
		switch it.Status {
		case domain.QueuePending:
			s.Pending++
		case domain.QueueSent:
			s.Sent++
		case domain.QueueFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (f *fakeQueueRepo) countStatus(mailingID string, status domain.QueueStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if it.MailingID == mailingID && it.Status == status {
			n++
		}
	}
	return n
}

// fakeMailingRepo is an in-memory MailingRepository.
type fakeMailingRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.Mailing
	nextID int
}

func newFakeMailingRepo() *fakeMailingRepo {
	return &fakeMailingRepo{byID: make(map[string]*domain.Mailing)}
}

func (f *fakeMailingRepo) Create(ctx context.Context, m *domain.Mailing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = fmt.Sprintf("m-%d", f.nextID)
	cp := *m
	f.byID[m.ID] = &cp
	return nil
}

func (f *fakeMailingRepo) GetByID(ctx context.Context, eventID, id string) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.EventID != eventID {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMailingRepo) ListByEventID(ctx context.Context, eventID string) ([]*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Mailing{}
	for _, m := range f.byID {
		if m.EventID == eventID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMailingRepo) Update(ctx context.Context, m *domain.Mailing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status != domain.MailingDraft {
		return domain.ErrMailingNotDraft
	}
	cp := *m
	f.byID[m.ID] = &cp
	return nil
}

func (f *fakeMailingRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.Status != domain.MailingDraft {
		return domain.ErrMailingNotDraft
	}
	m.Status = domain.MailingSent
	m.SentAt = &sentAt
	return nil
}

// fakeUserRepo implements domain.UserRepository for tests.
type fakeUserRepo struct {
	byID      map[string]*domain.User
	byEmail   map[string]*domain.User
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (f *fakeUserRepo) Create(ctx context.Context, u *domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return domain.ErrDuplicate
	}
	u.ID = fmt.Sprintf("user-%d", len(f.byID)+1)
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

var errStorage = errors.New("connection refused")
