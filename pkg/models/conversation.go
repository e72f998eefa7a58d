package models

// Branch is an independent, ordered message sequence within a conversation.
// Branches share a common prefix by construction but are stored and
// addressed independently once created.
type Branch struct {
	Messages []Message `json:"messages"`
}

// Conversation is the persisted chat document. Branches only grow
// (append-only list); ActiveBranch is the only mutable pointer; no branch
// is ever deleted or merged short of deleting the whole document.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Branches is non-empty after creation; a new conversation starts with
	// exactly one empty branch, active.
	Branches     []Branch `json:"branches"`
	ActiveBranch int      `json:"activeBranch"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// Active returns the active branch, or nil when the index is out of range
// (corrupted state; callers fall back to a safe empty view).
func (c *Conversation) Active() *Branch {
	if c.ActiveBranch < 0 || c.ActiveBranch >= len(c.Branches) {
		return nil
	}
	return &c.Branches[c.ActiveBranch]
}
