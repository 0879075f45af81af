package discord

// Interaction types sent by Discord.
const (
	InteractionPing        = 1
	InteractionCommand     = 2
	InteractionComponent   = 3
	InteractionModalSubmit = 5
)

// Interaction response types.
const (
	ResponsePong           = 1
	ResponseChannelMessage = 4
	ResponseUpdateMessage  = 7
	ResponseModal          = 9
)

// Component types.
const (
	ComponentActionRow = 1
	ComponentButton    = 2
	ComponentTextInput = 4
)

// Button styles.
const (
	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonSuccess   = 3
	ButtonDanger    = 4
)

// Text input styles.
const (
	TextInputShort     = 1
	TextInputParagraph = 2
)

// FlagEphemeral makes an interaction reply visible only to the clicker.
const FlagEphemeral = 1 << 6

// Message is the body of a create-message or execute-webhook call.
type Message struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// messageEdit always sends components so an empty slice clears buttons.
type messageEdit struct {
	Embeds     []Embed     `json:"embeds"`
	Components []Component `json:"components"`
}

// MessageRef identifies a posted message.
type MessageRef struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// Embed is a rich message block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is one name/value pair in an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the small text under an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// Component is a message or modal component. Only the fields relevant to
// Type are set.
type Component struct {
	Type        int         `json:"type"`
	Style       int         `json:"style,omitempty"`
	Label       string      `json:"label,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
	Value       string      `json:"value,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Required    bool        `json:"required,omitempty"`
	MaxLength   int         `json:"max_length,omitempty"`
	Components  []Component `json:"components,omitempty"`
}

// Interaction is the subset of an incoming interaction payload that the
// channel uses.
type Interaction struct {
	ID      string           `json:"id"`
	Type    int              `json:"type"`
	Token   string           `json:"token"`
	Data    *InteractionData `json:"data,omitempty"`
	Member  *Member          `json:"member,omitempty"`
	User    *User            `json:"user,omitempty"`
	Message *MessageRef      `json:"message,omitempty"`
}

// InteractionData carries the clicked component or the submitted modal.
type InteractionData struct {
	CustomID      string      `json:"custom_id"`
	ComponentType int         `json:"component_type,omitempty"`
	Components    []Component `json:"components,omitempty"`
}

// Member is a guild member.
type Member struct {
	User *User `json:"user,omitempty"`
}

// User is a Discord user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Actor returns the username of whoever triggered the interaction.
func (i Interaction) Actor() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}

// InteractionResponse is the synchronous reply to an interaction.
type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

// InteractionResponseData is used for message updates, replies and modals.
type InteractionResponseData struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components"`
	Flags      int         `json:"flags,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Title      string      `json:"title,omitempty"`
}

// textInputValue finds the value of a text input inside modal rows.
func textInputValue(rows []Component, customID string) string {
	for _, row := range rows {
		if row.CustomID == customID && row.Type == ComponentTextInput {
			return row.Value
		}
		if v := textInputValue(row.Components, customID); v != "" {
			return v
		}
	}
	return ""
}
