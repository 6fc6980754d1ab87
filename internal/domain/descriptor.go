package domain

// ActionDescriptor is the minimal bundle the dispatcher needs to perform one
// delivery, decoupled from how the resolver discovered it. Descriptors for
// change-feed triggers are persisted into Workflow.FlowMetadata at publish
// time.
type ActionDescriptor struct {
	NodeType    NodeType       `json:"node_type" bson:"node_type"`
	NodeID      string         `json:"node_id" bson:"node_id"`
	WebhookURL  string         `json:"webhook_url,omitempty" bson:"webhook_url,omitempty"`
	TargetRef   string         `json:"target_ref,omitempty" bson:"target_ref,omitempty"`
	AccessToken string         `json:"access_token,omitempty" bson:"access_token,omitempty"`
	Action      NodeAction     `json:"action" bson:"action"`
	Properties  map[string]any `json:"properties,omitempty" bson:"properties,omitempty"`
}
