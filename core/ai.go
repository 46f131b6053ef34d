package core

import "encoding/json"

// AIReply is the backend answer to an AI request. It is either a PlainReply
// or a TransactionReply; the choice is made once when the body is decoded.
type AIReply interface {
	isAIReply()
}

// PlainReply carries a free-form response body
type PlainReply struct {
	Body json.RawMessage
}

// TransactionReply means the agent submitted a transaction on the user's behalf
type TransactionReply struct {
	TxHash  string `json:"tx_hash"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (PlainReply) isAIReply()       {}
func (TransactionReply) isAIReply() {}

// AIOutcome is the result of a single AI request
type AIOutcome struct {
	Reply       AIReply
	Transaction *TransactionOutcome // Set only for transaction replies
}

// AIResponse is the payload of the AI-response notification topic
type AIResponse struct {
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	TxHash  string          `json:"tx_hash,omitempty"`
	Final   bool            `json:"final_status,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// SystemMessage is the payload of the system notification topic
type SystemMessage struct {
	Text string `json:"text"`
}
