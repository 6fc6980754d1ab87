package domain

type NodeType string

const (
	NodeType_Discord NodeType = "discord"
	NodeType_Slack   NodeType = "slack"
	NodeType_Notion  NodeType = "notion"
)

type DeliveryMode string

const (
	DeliveryMode_DM      DeliveryMode = "dm"
	DeliveryMode_Channel DeliveryMode = "channel"
)

type MessageMode string

const (
	MessageMode_Default MessageMode = "default"
	MessageMode_Custom  MessageMode = "custom"
)

// NodeAction is the saved action sub-document on a destination node. A node
// whose action has IsSaved false must not survive publish validation.
type NodeAction struct {
	Delivery   DeliveryMode `json:"delivery" bson:"delivery"`
	Message    string       `json:"message" bson:"message"`
	Mode       MessageMode  `json:"mode" bson:"mode"`
	TargetUser string       `json:"target_user" bson:"target_user"`
	IsSaved    bool         `json:"is_saved" bson:"is_saved"`
}

func (a NodeAction) IsEmpty() bool {
	return a.Message == "" && a.TargetUser == ""
}

// Edge is one outgoing connection of a chat destination node.
type Edge struct {
	Type   NodeType
	NodeID string
}

// Connections holds a node's outgoing edges grouped by destination type.
// Slice order is edge-declaration order and is what makes resolution
// deterministic.
type Connections struct {
	DiscordNodeIDs []string `json:"discord_node_ids" bson:"discord_node_ids"`
	SlackNodeIDs   []string `json:"slack_node_ids" bson:"slack_node_ids"`
	NotionNodeIDs  []string `json:"notion_node_ids" bson:"notion_node_ids"`
}

// Ordered flattens the grouped edges into declaration order, chat
// destinations before document-workspace ones within each group key.
func (c Connections) Ordered() []Edge {
	edges := make([]Edge, 0, len(c.DiscordNodeIDs)+len(c.SlackNodeIDs)+len(c.NotionNodeIDs))

	for _, id := range c.DiscordNodeIDs {
		edges = append(edges, Edge{Type: NodeType_Discord, NodeID: id})
	}
	for _, id := range c.SlackNodeIDs {
		edges = append(edges, Edge{Type: NodeType_Slack, NodeID: id})
	}
	for _, id := range c.NotionNodeIDs {
		edges = append(edges, Edge{Type: NodeType_Notion, NodeID: id})
	}

	return edges
}

func (c Connections) IsEmpty() bool {
	return len(c.DiscordNodeIDs) == 0 && len(c.SlackNodeIDs) == 0 && len(c.NotionNodeIDs) == 0
}

// DiscordNode is the concrete destination record for a Discord channel.
type DiscordNode struct {
	ID          string      `bson:"_id"`
	UserID      string      `bson:"user_id"`
	NodeID      string      `bson:"node_id"`
	WorkflowID  string      `bson:"workflow_id"`
	GuildID     string      `bson:"guild_id"`
	ChannelID   string      `bson:"channel_id"`
	WebhookURL  string      `bson:"webhook_url"`
	Trigger     string      `bson:"trigger"`
	Action      NodeAction  `bson:"action"`
	Connections Connections `bson:"connections"`
}

// SlackNode is the concrete destination record for a Slack channel.
type SlackNode struct {
	ID          string      `bson:"_id"`
	UserID      string      `bson:"user_id"`
	NodeID      string      `bson:"node_id"`
	WorkflowID  string      `bson:"workflow_id"`
	TeamID      string      `bson:"team_id"`
	ChannelID   string      `bson:"channel_id"`
	WebhookURL  string      `bson:"webhook_url"`
	AccessToken string      `bson:"access_token"`
	Trigger     string      `bson:"trigger"`
	Action      NodeAction  `bson:"action"`
	Connections Connections `bson:"connections"`
}

// NotionNode is the concrete destination record for a document workspace
// page or database. Notion nodes are terminal: they carry no outgoing edges.
type NotionNode struct {
	ID           string         `bson:"_id"`
	UserID       string         `bson:"user_id"`
	NodeID       string         `bson:"node_id"`
	WorkflowID   string         `bson:"workflow_id"`
	WorkspaceID  string         `bson:"workspace_id"`
	DatabaseID   string         `bson:"database_id"`
	ParentPageID string         `bson:"parent_page_id"`
	AccessToken  string         `bson:"access_token"`
	Action       NodeAction     `bson:"action"`
	Properties   map[string]any `bson:"properties"`
}

// TargetRef is the creation target the dispatcher writes to: the database if
// one is selected, otherwise the parent page.
func (n NotionNode) TargetRef() string {
	if n.DatabaseID != "" {
		return n.DatabaseID
	}
	return n.ParentPageID
}

// ChatRecord is the normalized view of a chat destination record the
// resolver traverses. Concrete Discord/Slack documents map onto it.
type ChatRecord struct {
	NodeID      string
	Type        NodeType
	UserID      string
	WorkflowID  string
	ChannelID   string
	TeamID      string
	WebhookURL  string
	AccessToken string
	Trigger     string
	Action      NodeAction
	Connections Connections
}

func (n DiscordNode) ChatRecord() ChatRecord {
	return ChatRecord{
		NodeID:      n.NodeID,
		Type:        NodeType_Discord,
		UserID:      n.UserID,
		WorkflowID:  n.WorkflowID,
		ChannelID:   n.ChannelID,
		WebhookURL:  n.WebhookURL,
		Trigger:     n.Trigger,
		Action:      n.Action,
		Connections: n.Connections,
	}
}

func (n SlackNode) ChatRecord() ChatRecord {
	return ChatRecord{
		NodeID:      n.NodeID,
		Type:        NodeType_Slack,
		UserID:      n.UserID,
		WorkflowID:  n.WorkflowID,
		ChannelID:   n.ChannelID,
		TeamID:      n.TeamID,
		WebhookURL:  n.WebhookURL,
		AccessToken: n.AccessToken,
		Trigger:     n.Trigger,
		Action:      n.Action,
		Connections: n.Connections,
	}
}
