package domain

import (
	"errors"
)

type TriggerType string

const (
	TriggerType_None    TriggerType = "none"
	TriggerType_Discord TriggerType = "discord"
	TriggerType_Slack   TriggerType = "slack"
	TriggerType_Drive   TriggerType = "google_drive"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrNodeNotFound     = errors.New("node not found")
)

// Workflow is the published automation record. FlowMetadata is the fan-out
// list computed at publish time so change-feed notifications never have to
// re-walk the connection graph.
type Workflow struct {
	ID            string
	UserID        string
	Name          string
	ParentTrigger TriggerType
	ParentID      string
	Published     bool
	FlowMetadata  []ActionDescriptor
}

func (w Workflow) HasTrigger() bool {
	return w.ParentTrigger != TriggerType_None && w.ParentID != ""
}

// TriggersNode reports whether the workflow's trigger still points at the
// given node. Renewal uses this to decide between re-watching and stopping.
func (w Workflow) TriggersNode(nodeID string) bool {
	return w.Published && w.ParentTrigger == TriggerType_Drive && w.ParentID == nodeID
}
