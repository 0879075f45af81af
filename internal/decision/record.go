package decision

import "time"

// Kind is the closed set of outcomes a pending decision can resolve to.
type Kind string

const (
	KindApprove Kind = "approve"
	KindReject  Kind = "reject"
	KindTimeout Kind = "timeout"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindApprove, KindReject, KindTimeout:
		return true
	}
	return false
}

// Override carries human edits attached to an approval. Empty fields mean
// "keep the AI-produced value".
type Override struct {
	Severity string `json:"severity,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Modified bool   `json:"modified"`
}

// Record is the resolved outcome of a decision request. Only approvals carry
// an Override.
type Record struct {
	Kind       Kind      `json:"kind"`
	Override   *Override `json:"override,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Approve builds an approval, optionally with human overrides.
func Approve(actor string, o *Override) Record {
	return Record{Kind: KindApprove, Override: o, Actor: actor, ResolvedAt: time.Now().UTC()}
}

// Reject builds a rejection.
func Reject(actor string) Record {
	return Record{Kind: KindReject, Actor: actor, ResolvedAt: time.Now().UTC()}
}

// Timeout builds the record synthesized when nobody answers in time.
func Timeout() Record {
	return Record{Kind: KindTimeout, ResolvedAt: time.Now().UTC()}
}

// Request is everything an interactive channel needs to render a decision
// prompt for one issue.
type Request struct {
	ID              string    `json:"id"`
	Issue           int       `json:"issue"`
	Repo            string    `json:"repo"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Severity        string    `json:"severity"`
	Summary         string    `json:"summary"`
	IsDuplicate     bool      `json:"is_duplicate"`
	SimilarityScore float64   `json:"similarity_score,omitempty"`
	DuplicateOf     int       `json:"duplicate_of,omitempty"`
	ProposedComment string    `json:"proposed_comment,omitempty"`
	Deadline        time.Time `json:"deadline"`
}
