package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/triage"
)

// DefaultDecisionTimeout is how long the buttons stay live.
const DefaultDecisionTimeout = time.Hour

const (
	customIDPrefix = "triage"
	verbApprove    = "approve"
	verbReject     = "reject"
	verbModify     = "modify"
	verbModal      = "modal"

	inputSeverity = "severity"
	inputText     = "text"

	bodyPreviewChars = 200
	summaryChars     = 800
	modalTextChars   = 1000
)

var severityColors = map[triage.Severity]int{
	triage.SeverityCritical: 0xd73a4a,
	triage.SeverityHigh:     0xff6600,
	triage.SeverityMedium:   0xffcc00,
	triage.SeverityLow:      0x00cc66,
	triage.SeverityInfo:     0x0099cc,
}

const (
	colorApproved = 0x2ecc71
	colorRejected = 0x95a5a6
	colorTimedOut = 0x7f8c8d
)

// ChannelConfig configures a decision channel.
type ChannelConfig struct {
	ChannelID string
	// Timeout is the UI-level window after which the channel resolves the
	// decision as timed out itself.
	Timeout time.Duration
	Logger  *slog.Logger
}

// outstanding tracks one published decision message.
type outstanding struct {
	req       decision.Request
	messageID string
	embed     Embed
	timer     *time.Timer
}

// Channel publishes decision requests as interactive messages. It
// implements decision.Publisher and resolves through a bound Resolver.
type Channel struct {
	client    *Client
	channelID string
	timeout   time.Duration
	log       *slog.Logger

	mu          sync.Mutex
	resolver    decision.Resolver
	outstanding map[int]*outstanding
}

var (
	_ decision.Publisher = (*Channel)(nil)
	_ decision.Retractor = (*Channel)(nil)
)

// NewChannel creates a channel. Bind must be called before Publish.
func NewChannel(client *Client, cfg ChannelConfig) *Channel {
	c := &Channel{
		client:      client,
		channelID:   cfg.ChannelID,
		timeout:     cfg.Timeout,
		log:         cfg.Logger,
		outstanding: make(map[int]*outstanding),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultDecisionTimeout
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Bind attaches the resolver that button clicks and timers report to.
func (c *Channel) Bind(r decision.Resolver) {
	c.mu.Lock()
	c.resolver = r
	c.mu.Unlock()
}

func (c *Channel) getResolver() decision.Resolver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolver
}

// Publish posts the decision message and starts the UI timer.
func (c *Channel) Publish(ctx context.Context, req decision.Request) error {
	if c.getResolver() == nil {
		return fmt.Errorf("discord channel has no resolver bound")
	}
	if req.ID == "" {
		return fmt.Errorf("decision request for issue #%d has no id", req.Issue)
	}
	embed := c.DecisionEmbed(req)
	ref, err := c.client.CreateMessage(ctx, c.channelID, Message{
		Embeds:     []Embed{embed},
		Components: decisionButtons(req),
	})
	if err != nil {
		return fmt.Errorf("publish decision for issue #%d: %w", req.Issue, err)
	}

	o := &outstanding{req: req, messageID: ref.ID, embed: embed}
	issue := req.Issue
	c.mu.Lock()
	if prev, ok := c.outstanding[issue]; ok {
		prev.timer.Stop()
	}
	o.timer = time.AfterFunc(c.timeout, func() { c.expire(issue, o) })
	c.outstanding[issue] = o
	c.mu.Unlock()

	c.log.Info("decision request published", "issue", issue, "message_id", ref.ID)
	return nil
}

// Outstanding returns the number of decision messages still awaiting input.
func (c *Channel) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

// take removes and returns the outstanding entry for issue if it belongs to
// requestID, stopping its timer.
func (c *Channel) take(issue int, requestID string) *outstanding {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outstanding[issue]
	if !ok || o.req.ID != requestID {
		return nil
	}
	delete(c.outstanding, issue)
	o.timer.Stop()
	return o
}

func (c *Channel) peek(issue int, requestID string) *outstanding {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.outstanding[issue]
	if o == nil || o.req.ID != requestID {
		return nil
	}
	return o
}

// expire fires when nobody clicked within the UI window.
func (c *Channel) expire(issue int, o *outstanding) {
	c.mu.Lock()
	if c.outstanding[issue] != o {
		c.mu.Unlock()
		return
	}
	delete(c.outstanding, issue)
	r := c.resolver
	c.mu.Unlock()

	status, detail, color := "Timed out", "No response within the decision window. No actions were taken.", colorTimedOut
	if r != nil && r.ResolveRequest(issue, o.req.ID, decision.Timeout()) {
		c.log.Warn("decision timed out", "issue", issue)
	} else {
		status, detail = "Closed", "This decision is no longer pending."
	}
	c.finish(o, status, detail, color)
}

// Retract retires the message for req once the broker stops waiting on it,
// whatever resolved it. Clicks and timers on the message are ignored from
// then on.
func (c *Channel) Retract(req decision.Request, rec *decision.Record) {
	o := c.take(req.Issue, req.ID)
	if o == nil {
		return
	}

	status, detail, color := "Withdrawn", "The triage run ended before a decision was made. No actions were taken.", colorTimedOut
	if rec != nil {
		by := ""
		if rec.Actor != "" {
			by = " by " + rec.Actor
		}
		switch rec.Kind {
		case decision.KindApprove:
			status, detail, color = "Approved", "Approved outside Discord"+by+".", colorApproved
		case decision.KindReject:
			status, detail, color = "Rejected", "Rejected outside Discord"+by+". No actions will be taken.", colorRejected
		default:
			status, detail = "Timed out", "No response within the decision window. No actions were taken."
		}
	}
	c.log.Info("decision message retracted", "issue", req.Issue, "request_id", req.ID, "status", status)
	go c.finish(o, status, detail, color)
}

// finish replaces the buttons on o's message with the final status.
func (c *Channel) finish(o *outstanding, status, detail string, color int) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	embed := resolvedEmbed(o.embed, status, detail, color)
	if err := c.client.EditMessage(ctx, c.channelID, o.messageID, []Embed{embed}, nil); err != nil {
		c.log.Error("update decision message", "issue", o.req.Issue, "status", status, "error", err)
	}
}

// HandleInteraction turns an interaction into a response. Unknown
// interactions get an ephemeral notice.
func (c *Channel) HandleInteraction(in Interaction) InteractionResponse {
	switch in.Type {
	case InteractionPing:
		return InteractionResponse{Type: ResponsePong}
	case InteractionComponent:
		return c.handleComponent(in)
	case InteractionModalSubmit:
		return c.handleModal(in)
	}
	return ephemeral("Unsupported interaction.")
}

func (c *Channel) handleComponent(in Interaction) InteractionResponse {
	if in.Data == nil {
		return ephemeral("Unsupported interaction.")
	}
	verb, issue, requestID, err := ParseCustomID(in.Data.CustomID)
	if err != nil {
		return ephemeral("Unsupported interaction.")
	}
	actor := in.Actor()

	switch verb {
	case verbApprove:
		return c.resolveWith(issue, requestID, decision.Approve(actor, nil), "Approved", "Approved by "+actor+".", colorApproved)
	case verbReject:
		return c.resolveWith(issue, requestID, decision.Reject(actor), "Rejected", "Rejected by "+actor+". No actions will be taken.", colorRejected)
	case verbModify:
		o := c.peek(issue, requestID)
		if o == nil {
			return notPending(issue)
		}
		return modifyModal(o.req)
	}
	return ephemeral("Unsupported interaction.")
}

func (c *Channel) handleModal(in Interaction) InteractionResponse {
	if in.Data == nil {
		return ephemeral("Unsupported interaction.")
	}
	verb, issue, requestID, err := ParseCustomID(in.Data.CustomID)
	if err != nil || verb != verbModal {
		return ephemeral("Unsupported interaction.")
	}
	o := c.peek(issue, requestID)
	if o == nil {
		return notPending(issue)
	}

	actor := in.Actor()
	override := &decision.Override{
		Severity: strings.TrimSpace(textInputValue(in.Data.Components, inputSeverity)),
		Modified: true,
	}
	text := strings.TrimSpace(textInputValue(in.Data.Components, inputText))
	if o.req.IsDuplicate {
		override.Comment = text
	} else {
		override.Summary = text
	}

	detail := "Approved with modifications by " + actor + "."
	if override.Severity != "" {
		detail += "\nSeverity: " + override.Severity
	}
	return c.resolveWith(issue, requestID, decision.Approve(actor, override), "Approved (modified)", detail, colorApproved)
}

func (c *Channel) resolveWith(issue int, requestID string, rec decision.Record, status, detail string, color int) InteractionResponse {
	if c.peek(issue, requestID) == nil {
		return notPending(issue)
	}
	r := c.getResolver()
	if r == nil || !r.ResolveRequest(issue, requestID, rec) {
		c.take(issue, requestID)
		return notPending(issue)
	}
	o := c.take(issue, requestID)
	c.log.Info("decision received", "issue", issue, "decision", rec.Kind, "actor", rec.Actor)

	var embeds []Embed
	if o != nil {
		embeds = []Embed{resolvedEmbed(o.embed, status, detail, color)}
	} else {
		embeds = []Embed{{Title: fmt.Sprintf("Issue #%d: %s", issue, status), Description: detail, Color: color}}
	}
	return InteractionResponse{
		Type: ResponseUpdateMessage,
		Data: &InteractionResponseData{Embeds: embeds, Components: []Component{}},
	}
}

// DecisionEmbed renders the decision prompt for req.
func (c *Channel) DecisionEmbed(req decision.Request) Embed {
	sev, err := triage.ParseSeverity(req.Severity)
	if err != nil {
		sev = triage.DefaultSeverity
	}

	desc := "**" + req.Title + "**"
	if body := strings.TrimSpace(req.Body); body != "" {
		desc += "\n\n" + truncate(body, bodyPreviewChars)
	}

	fields := []EmbedField{
		{Name: "Severity", Value: fmt.Sprintf("%s **%s** - %s", sev.Marker(), sev, sev.Description()), Inline: true},
		{Name: "Impact Assessment", Value: sev.Impact(), Inline: true},
	}
	if req.IsDuplicate {
		dup := fmt.Sprintf("Possible duplicate of #%d (Similarity: %.1f%%)", req.DuplicateOf, req.SimilarityScore*100)
		if req.ProposedComment != "" {
			dup += "\n\n**Proposed comment:**\n" + truncate(req.ProposedComment, summaryChars)
		}
		fields = append(fields,
			EmbedField{Name: "Duplicate Analysis", Value: dup},
			EmbedField{Name: "Recommended Actions", Value: "• Add `duplicate` label\n• Post duplicate comment\n• Close issue"},
		)
	} else {
		fields = append(fields,
			EmbedField{Name: "AI Summary", Value: truncate(orDash(req.Summary), summaryChars)},
			EmbedField{Name: "Recommended Actions", Value: fmt.Sprintf("• Add `%s` label\n• Post analysis comment", sev)},
		)
	}

	return Embed{
		Title:       fmt.Sprintf("Triage Required: Issue #%d", req.Issue),
		Description: desc,
		Color:       severityColors[sev],
		Fields:      fields,
		Footer:      &EmbedFooter{Text: "Action required within " + formatWindow(c.timeout)},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func decisionButtons(req decision.Request) []Component {
	return []Component{{
		Type: ComponentActionRow,
		Components: []Component{
			{Type: ComponentButton, Style: ButtonSuccess, Label: "Approve", CustomID: CustomID(verbApprove, req.Issue, req.ID)},
			{Type: ComponentButton, Style: ButtonDanger, Label: "Reject", CustomID: CustomID(verbReject, req.Issue, req.ID)},
			{Type: ComponentButton, Style: ButtonSecondary, Label: "Modify", CustomID: CustomID(verbModify, req.Issue, req.ID)},
		},
	}}
}

func modifyModal(req decision.Request) InteractionResponse {
	textLabel, textValue := "Summary", req.Summary
	if req.IsDuplicate {
		textLabel, textValue = "Duplicate comment", req.ProposedComment
	}
	return InteractionResponse{
		Type: ResponseModal,
		Data: &InteractionResponseData{
			CustomID: CustomID(verbModal, req.Issue, req.ID),
			Title:    fmt.Sprintf("Modify triage for #%d", req.Issue),
			Components: []Component{
				{Type: ComponentActionRow, Components: []Component{{
					Type: ComponentTextInput, Style: TextInputShort, CustomID: inputSeverity,
					Label: "Severity (Critical, High, Medium, Low, Info)", Value: req.Severity, MaxLength: 20,
				}}},
				{Type: ComponentActionRow, Components: []Component{{
					Type: ComponentTextInput, Style: TextInputParagraph, CustomID: inputText,
					Label: textLabel, Value: truncate(textValue, modalTextChars), MaxLength: modalTextChars,
				}}},
			},
		},
	}
}

func resolvedEmbed(e Embed, status, detail string, color int) Embed {
	out := e
	out.Color = color
	out.Fields = append(append([]EmbedField(nil), e.Fields...), EmbedField{Name: "Decision: " + status, Value: detail})
	out.Footer = &EmbedFooter{Text: status}
	return out
}

func ephemeral(content string) InteractionResponse {
	return InteractionResponse{
		Type: ResponseChannelMessage,
		Data: &InteractionResponseData{Content: content, Flags: FlagEphemeral, Components: []Component{}},
	}
}

func notPending(issue int) InteractionResponse {
	return ephemeral(fmt.Sprintf("Issue #%d is no longer pending a decision.", issue))
}

// CustomID builds the component id for verb on one decision request:
// triage:<verb>:<issue>:<request id>.
func CustomID(verb string, issue int, requestID string) string {
	return customIDPrefix + ":" + verb + ":" + strconv.Itoa(issue) + ":" + requestID
}

// ParseCustomID splits a component id built by CustomID.
func ParseCustomID(id string) (verb string, issue int, requestID string, err error) {
	parts := strings.SplitN(id, ":", 4)
	if len(parts) != 4 || parts[0] != customIDPrefix || parts[3] == "" {
		return "", 0, "", fmt.Errorf("unrecognized custom_id %q", id)
	}
	issue, err = strconv.Atoi(parts[2])
	if err != nil || issue <= 0 {
		return "", 0, "", fmt.Errorf("bad issue in custom_id %q", id)
	}
	return parts[1], issue, parts[3], nil
}

func formatWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
