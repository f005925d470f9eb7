package service_test

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/ai"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/mailer"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// store is an in-memory stand-in for Postgres shared by the fake repos.
type store struct {
	mu        sync.Mutex
	seq       int
	campaigns map[string]*model.Campaign
	leads     []*model.Lead
	agents    map[string]*model.Agent
	locked    map[string]bool

	// markSentErr, when set, is returned by MarkSent.
	markSentErr error
	// runContextErr and lockErr simulate an unreachable database.
	runContextErr error
	lockErr       error
}

func newStore() *store {
	return &store{
		campaigns: make(map[string]*model.Campaign),
		agents:    make(map[string]*model.Agent),
		locked:    make(map[string]bool),
	}
}

func (s *store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *store) addAgent(userID, email, password, persona string) *model.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &model.Agent{
		ID:            s.nextID("agent"),
		UserID:        userID,
		Name:          "Agent",
		Email:         email,
		AppPassword:   password,
		PersonaPrompt: persona,
		Status:        model.AgentActive,
		CreatedAt:     time.Now(),
	}
	s.agents[a.ID] = a
	return a
}

// addCampaign seeds a campaign whose leads have the given statuses.
func (s *store) addCampaign(userID string, agentID *string, status model.CampaignStatus, sent int, leads ...model.Lead) *model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &model.Campaign{
		ID:         s.nextID("campaign"),
		UserID:     userID,
		AgentID:    agentID,
		Name:       "Spring Launch",
		Status:     status,
		TotalLeads: len(leads),
		SentLeads:  sent,
		CreatedAt:  time.Now(),
	}
	s.campaigns[c.ID] = c
	for _, l := range leads {
		l.ID = s.nextID("lead")
		l.CampaignID = c.ID
		if l.Status == "" {
			l.Status = model.LeadPending
		}
		s.leads = append(s.leads, &l)
	}
	return c
}

func (s *store) campaign(id string) model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *store) lead(campaignID, email string) model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.CampaignID == campaignID && l.Email == email {
			return *l
		}
	}
	panic("lead not found: " + email)
}

func (s *store) setStatus(id string, status model.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].Status = status
}

// ---------------- campaigns ----------------

type fakeCampaignRepo struct{ *store }

var _ repository.CampaignRepositoryInterface = fakeCampaignRepo{}

func (r fakeCampaignRepo) CreateWithLeads(_ context.Context, c *model.Campaign, leads []model.NewLead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID("campaign")
	c.Status = model.CampaignDraft
	c.TotalLeads = len(leads)
	c.CreatedAt = time.Now()
	stored := *c
	r.campaigns[c.ID] = &stored
	for _, nl := range leads {
		r.leads = append(r.leads, &model.Lead{
			ID:         r.nextID("lead"),
			CampaignID: c.ID,
			Email:      nl.Email,
			FirstName:  nl.Name,
			Role:       nl.Role,
			Status:     model.LeadPending,
		})
	}
	return nil
}

func (r fakeCampaignRepo) GetByID(_ context.Context, userID, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.UserID != userID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r fakeCampaignRepo) ListByUser(_ context.Context, userID string) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeCampaignRepo) UpdateStatus(_ context.Context, id string, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (r fakeCampaignRepo) GetStatus(_ context.Context, id string) (model.CampaignStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return "", appErrors.NewCampaignNotFound(id)
	}
	return c.Status, nil
}

func (r fakeCampaignRepo) GetCampaignStats(_ context.Context, id string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"total": 0, "Pending": 0, "Sent": 0, "Failed": 0}
	for _, l := range r.leads {
		if l.CampaignID == id {
			stats[string(l.Status)]++
			stats["total"]++
		}
	}
	return stats, nil
}

func (r fakeCampaignRepo) GetRunContext(_ context.Context, id string) (*model.RunContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runContextErr != nil {
		return nil, r.runContextErr
	}
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if c.AgentID == nil {
		return nil, repository.ErrNoAgent
	}
	a, ok := r.agents[*c.AgentID]
	if !ok {
		return nil, repository.ErrNoAgent
	}
	return &model.RunContext{Campaign: *c, AgentEmail: a.Email, AppPassword: a.AppPassword, PersonaPrompt: a.PersonaPrompt}, nil
}

// IncrementSentLeads fails on a done ctx, as database/sql does.
func (r fakeCampaignRepo) IncrementSentLeads(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return 0, appErrors.NewCampaignNotFound(id)
	}
	if c.SentLeads < c.TotalLeads {
		c.SentLeads++
	}
	return c.SentLeads, nil
}

func (r fakeCampaignRepo) ListRunJobsByStatus(_ context.Context, status model.CampaignStatus) ([]model.RunJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := []model.RunJob{}
	for _, c := range r.campaigns {
		if c.Status == status {
			jobs = append(jobs, model.RunJob{CampaignID: c.ID, UserID: c.UserID})
		}
	}
	return jobs, nil
}

func (r fakeCampaignRepo) AcquireRunLock(_ context.Context, id string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	if r.locked[id] {
		return nil, appErrors.ErrRunInProgress
	}
	r.locked[id] = true
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.locked, id)
	}, nil
}

// ---------------- leads ----------------

type fakeLeadRepo struct{ *store }

var _ repository.LeadRepositoryInterface = fakeLeadRepo{}

func (r fakeLeadRepo) ListPending(_ context.Context, campaignID string) ([]*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Lead{}
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.Status == model.LeadPending {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeLeadRepo) ListByCampaign(_ context.Context, campaignID string) ([]*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Lead{}
	for _, l := range r.leads {
		if l.CampaignID == campaignID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeLeadRepo) transition(leadID string, apply func(l *model.Lead)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.ID == leadID {
			if l.Status != model.LeadPending {
				return repository.ErrLeadNotPending
			}
			apply(l)
			return nil
		}
	}
	return repository.ErrLeadNotPending
}

func (r fakeLeadRepo) MarkSent(ctx context.Context, leadID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.markSentErr != nil {
		return r.markSentErr
	}
	return r.transition(leadID, func(l *model.Lead) {
		now := time.Now()
		l.Status = model.LeadSent
		l.PersonalizedContent = &content
		l.SentAt = &now
	})
}

func (r fakeLeadRepo) MarkFailed(_ context.Context, leadID, msg string) error {
	return r.transition(leadID, func(l *model.Lead) {
		l.Status = model.LeadFailed
		l.ErrorMessage = &msg
	})
}

// ---------------- agents ----------------

type fakeAgentRepo struct{ *store }

var _ repository.AgentRepositoryInterface = fakeAgentRepo{}

func (r fakeAgentRepo) Create(_ context.Context, a *model.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextID("agent")
	a.CreatedAt = time.Now()
	cp := *a
	r.agents[a.ID] = &cp
	return nil
}

func (r fakeAgentRepo) GetByID(_ context.Context, userID, id string) (*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.UserID != userID {
		return nil, appErrors.NewAgentNotFound(id)
	}
	cp := *a
	return &cp, nil
}

func (r fakeAgentRepo) ListByUser(_ context.Context, userID string) ([]*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Agent{}
	for _, a := range r.agents {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeAgentRepo) Update(_ context.Context, userID, id string, p model.AgentPatch) (*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.UserID != userID {
		return nil, appErrors.NewAgentNotFound(id)
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.AppPassword != nil {
		a.AppPassword = *p.AppPassword
	}
	if p.PersonaPrompt != nil {
		a.PersonaPrompt = *p.PersonaPrompt
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	cp := *a
	return &cp, nil
}

func (r fakeAgentRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.UserID != userID {
		return appErrors.NewAgentNotFound(id)
	}
	delete(r.agents, id)
	for _, c := range r.campaigns {
		if c.AgentID != nil && *c.AgentID == id {
			c.AgentID = nil
		}
	}
	return nil
}

func (r fakeAgentRepo) SetStatus(_ context.Context, id string, status model.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.Status = status
	}
	return nil
}

// ---------------- collaborators ----------------

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	fn      func(ctx context.Context, prompt string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, _ ai.Options) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.fn != nil {
		return g.fn(ctx, prompt)
	}
	return "Hello from the agent", nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, prompt string, opts ai.Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, chunk := range []string{"echo: ", prompt, " as ", opts.SystemInstruction} {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

type sentMail struct {
	msg mailer.Message
}

type fakeDialer struct {
	mu       sync.Mutex
	openErr  error
	verifyFn func(creds mailer.Credentials) error
	failFor  map[string]error
	sent     []sentMail
	opened   int
	closed   int

	// afterSend runs once a message has been delivered.
	afterSend func(msg mailer.Message)
}

func (d *fakeDialer) Open(_ context.Context, creds mailer.Credentials) (mailer.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened++
	return &fakeSession{d: d}, nil
}

func (d *fakeDialer) Verify(_ context.Context, creds mailer.Credentials) error {
	if d.verifyFn != nil {
		return d.verifyFn(creds)
	}
	return nil
}

func (d *fakeDialer) recipients() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.sent))
	for i, s := range d.sent {
		out[i] = s.msg.To
	}
	return out
}

type fakeSession struct{ d *fakeDialer }

func (s *fakeSession) Send(_ context.Context, msg mailer.Message) error {
	s.d.mu.Lock()
	if err, ok := s.d.failFor[msg.To]; ok {
		s.d.mu.Unlock()
		return err
	}
	s.d.sent = append(s.d.sent, sentMail{msg: msg})
	after := s.d.afterSend
	s.d.mu.Unlock()
	if after != nil {
		after(msg)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.closed++
	return nil
}

type notification struct {
	channel string
	event   string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(_ context.Context, channel, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{channel: channel, event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

func (n *recordingNotifier) last() notification {
	all := n.all()
	return all[len(all)-1]
}

func strPtr(s string) *string { return &s }
