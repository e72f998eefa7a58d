// Package convo is the branch-aware conversation state machine. A
// conversation is a set of independent message-sequence branches with one
// active branch; branches only grow, and the active-branch pointer is the
// only mutable piece of state short of whole-document deletion.
package convo

import (
	"errors"
	"time"

	"branchchat/pkg/logger"
	"branchchat/pkg/models"
	"branchchat/pkg/store"
)

// ErrInvalidBranchIndex is returned by SwitchActive for an out-of-range
// target index.
var ErrInvalidBranchIndex = errors.New("invalid branch index")

// titleLimit is how many characters of the first user message become the
// conversation title.
const titleLimit = 50

// ActiveView is the renderable state of a conversation's active branch.
type ActiveView struct {
	Messages      []models.Message `json:"messages"`
	ActiveBranch  int              `json:"activeBranch"`
	TotalBranches int              `json:"totalBranches"`
}

type Service struct {
	st *store.Store
}

func New(st *store.Store) *Service {
	return &Service{st: st}
}

// Create persists a fresh conversation: one empty branch, active, titled
// "New Chat" until the first exchange lands.
func (s *Service) Create() (models.Conversation, error) {
	c := models.Conversation{
		ID:           store.GenID("conv"),
		Title:        "New Chat",
		Branches:     []models.Branch{{Messages: []models.Message{}}},
		ActiveBranch: 0,
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	if err := s.st.SaveConversation(c); err != nil {
		return models.Conversation{}, err
	}
	logger.Info("conversation_created", "conversation", c.ID)
	return c, nil
}

// List returns all conversations, newest first.
func (s *Service) List() ([]models.Conversation, error) {
	return s.st.ListConversations()
}

// Delete removes the conversation and every branch with it.
func (s *Service) Delete(id string) error {
	return s.st.DeleteConversation(id)
}

// GetActive loads the conversation and returns its active branch view.
// A corrupted document (no branches, or an out-of-range active index)
// yields a safe empty view rather than an error, so callers always get a
// renderable result. Absent conversations return store.ErrNotFound.
func (s *Service) GetActive(id string) (ActiveView, error) {
	c, err := s.st.GetConversation(id)
	if err != nil {
		return ActiveView{}, err
	}
	br := c.Active()
	if br == nil {
		total := len(c.Branches)
		if total == 0 {
			total = 1
		}
		logger.Warn("conversation_active_branch_out_of_range", "conversation", id, "active", c.ActiveBranch, "branches", len(c.Branches))
		return ActiveView{Messages: []models.Message{}, ActiveBranch: 0, TotalBranches: total}, nil
	}
	return s.view(&c), nil
}

// Commit atomically persists a new user+assistant pair.
//
// With branchOrigin set, a new branch is created from the shared prefix
// prior[0:origin] plus the pair, and becomes active; existing branches are
// left untouched and stay addressable by index. Without it, the pair is
// appended to the currently active branch (repairing a structurally
// missing branch record first).
//
// The title is assigned from the first message's content, truncated, the
// first time the active branch holds exactly two messages on the
// non-branching path; later commits never change it through this rule.
func (s *Service) Commit(id string, prior []models.Message, user, assistant models.Message, branchOrigin *int) (models.Conversation, error) {
	c, err := s.st.GetConversation(id)
	if err != nil {
		return models.Conversation{}, err
	}
	repair(&c)

	if branchOrigin != nil {
		origin := *branchOrigin
		if origin < 0 {
			origin = 0
		}
		if origin > len(prior) {
			origin = len(prior)
		}
		msgs := make([]models.Message, 0, origin+2)
		msgs = append(msgs, prior[:origin]...)
		msgs = append(msgs, user, assistant)
		c.Branches = append(c.Branches, models.Branch{Messages: msgs})
		c.ActiveBranch = len(c.Branches) - 1
	} else {
		br := c.Active()
		br.Messages = append(br.Messages, user, assistant)
		if len(br.Messages) == 2 {
			c.Title = truncate(br.Messages[0].Content, titleLimit)
		}
	}

	if err := s.st.SaveConversation(c); err != nil {
		return models.Conversation{}, err
	}
	logger.Info("conversation_committed", "conversation", id, "branching", branchOrigin != nil, "active", c.ActiveBranch)
	return c, nil
}

// ReplaceActive is the alternate commit path for callers that already hold
// the full final message list (history plus assistant reply). It overwrites
// rather than appends so persisted state exactly matches what the caller
// displayed. Branching semantics match Commit.
func (s *Service) ReplaceActive(id string, final []models.Message, isBranching bool) (models.Conversation, error) {
	c, err := s.st.GetConversation(id)
	if err != nil {
		return models.Conversation{}, err
	}
	repair(&c)

	if isBranching {
		c.Branches = append(c.Branches, models.Branch{Messages: final})
		c.ActiveBranch = len(c.Branches) - 1
	} else {
		c.Active().Messages = final
		// first user+assistant pair on the non-branching path names the
		// conversation, same rule as Commit
		if len(final) == 2 {
			c.Title = truncate(final[0].Content, titleLimit)
		}
	}

	if err := s.st.SaveConversation(c); err != nil {
		return models.Conversation{}, err
	}
	logger.Info("conversation_replaced", "conversation", id, "branching", isBranching, "messages", len(final))
	return c, nil
}

// SwitchActive moves the active-branch pointer. Out-of-range indices fail
// with ErrInvalidBranchIndex without mutating state; switching to the
// already-active index is a no-op returning identical state.
func (s *Service) SwitchActive(id string, idx int) (ActiveView, error) {
	c, err := s.st.GetConversation(id)
	if err != nil {
		return ActiveView{}, err
	}
	if idx < 0 || idx >= len(c.Branches) {
		return ActiveView{}, ErrInvalidBranchIndex
	}
	if idx != c.ActiveBranch {
		c.ActiveBranch = idx
		if err := s.st.SaveConversation(c); err != nil {
			return ActiveView{}, err
		}
	}
	logger.Info("branch_switched", "conversation", id, "active", idx)
	return s.view(&c), nil
}

func (s *Service) view(c *models.Conversation) ActiveView {
	br := c.Active()
	msgs := br.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return ActiveView{Messages: msgs, ActiveBranch: c.ActiveBranch, TotalBranches: len(c.Branches)}
}

// repair normalizes a structurally damaged document on the load path: a
// missing branch array or a dangling active index gains empty branch
// records so the active pointer is always addressable. This is a defined
// recovery behavior, not a silent coercion.
func repair(c *models.Conversation) {
	if c.Branches == nil {
		c.Branches = []models.Branch{}
	}
	if c.ActiveBranch < 0 {
		c.ActiveBranch = 0
	}
	for c.ActiveBranch >= len(c.Branches) {
		c.Branches = append(c.Branches, models.Branch{Messages: []models.Message{}})
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
