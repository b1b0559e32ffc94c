package entities

// InboundMessage is a single text message delivered by the webhook transport.
type InboundMessage struct {
	From      string // sender phone number
	Text      string
	MessageID string // external id used for deduplication, may be empty
}
