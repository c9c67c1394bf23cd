package sqlite

import (
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
)

func testAgent(id, projectID, name string) *identity.Agent {
	now := time.Now()
	return &identity.Agent{
		ID:                id,
		ProjectID:         projectID,
		Name:              name,
		Program:           "claude-code",
		Model:             "test-model",
		InceptionTS:       now,
		LastActiveTS:      now,
		AttachmentsPolicy: identity.AttachmentsAuto,
		ContactPolicy:     identity.ContactAuto,
	}
}

func testMessage(projectID, senderID string) *messaging.Message {
	return &messaging.Message{
		ProjectID:  projectID,
		SenderID:   senderID,
		Subject:    "test subject",
		BodyMD:     "test body",
		Importance: messaging.ImportanceNormal,
		CreatedTS:  time.Now(),
	}
}

func testRecipients(messageID int64, agentIDs ...string) []messaging.MessageRecipient {
	recipients := make([]messaging.MessageRecipient, 0, len(agentIDs))
	for _, id := range agentIDs {
		recipients = append(recipients, messaging.MessageRecipient{MessageID: messageID, AgentID: id, Kind: messaging.KindTo})
	}
	return recipients
}
