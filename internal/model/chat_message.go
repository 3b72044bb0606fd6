package model

import "time"

// ChatMessage is one entry in a chat room event log. The gateway only
// appends oracle replies; user messages arrive through the chat
// transport, which is outside this service.
type ChatMessage struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Username      string    `json:"username"`
	Content       string    `json:"content"`
	SourceLang    string    `json:"source_lang"`
	MessageType   string    `json:"message_type"`
	ChatRoom      string    `json:"chat_room"`
	CreatedAt     time.Time `json:"created_at"`
}
