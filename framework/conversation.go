package framework

// Conversation is the ordered message list submitted to the model during one
// run. It is append-only; the system message is always first.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation with the given system prompt.
func NewConversation(system string) *Conversation {
	c := &Conversation{}
	c.Reset(system)
	return c
}

// Reset discards the history and installs a new system prompt.
func (c *Conversation) Reset(system string) {
	c.messages = []Message{{Role: RoleSystem, Content: system}}
}

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// AppendUser appends a user turn.
func (c *Conversation) AppendUser(content string) {
	c.Append(Message{Role: RoleUser, Content: content})
}

// AppendAssistant appends an assistant turn.
func (c *Conversation) AppendAssistant(content string) {
	c.Append(Message{Role: RoleAssistant, Content: content})
}

// Messages returns a copy suitable for handing to a model client.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages including the system prompt.
func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
