package resolver

import (
	"context"
	"testing"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorkflowStore struct {
	workflows map[string]domain.Workflow
	metadata  map[string][]domain.ActionDescriptor
}

func newFakeWorkflowStore(workflows ...domain.Workflow) *fakeWorkflowStore {
	store := &fakeWorkflowStore{
		workflows: map[string]domain.Workflow{},
		metadata:  map[string][]domain.ActionDescriptor{},
	}
	for _, w := range workflows {
		store.workflows[w.ID] = w
	}
	return store
}

func (f *fakeWorkflowStore) GetWorkflow(_ context.Context, id string) (domain.Workflow, error) {
	w, ok := f.workflows[id]
	if !ok {
		return domain.Workflow{}, domain.ErrWorkflowNotFound
	}
	return w, nil
}

func (f *fakeWorkflowStore) SetPublished(_ context.Context, id string, published bool) error {
	w, ok := f.workflows[id]
	if !ok {
		return domain.ErrWorkflowNotFound
	}
	w.Published = published
	f.workflows[id] = w
	return nil
}

func (f *fakeWorkflowStore) SaveFlowMetadata(_ context.Context, id string, descriptors []domain.ActionDescriptor) error {
	if _, ok := f.workflows[id]; !ok {
		return domain.ErrWorkflowNotFound
	}
	f.metadata[id] = descriptors
	return nil
}

type fakeFanOutCache struct {
	entries     map[domain.ChatEventKey]domain.FanOut
	invalidated []domain.ChatEventKey
}

func newFakeFanOutCache() *fakeFanOutCache {
	return &fakeFanOutCache{entries: map[domain.ChatEventKey]domain.FanOut{}}
}

func (f *fakeFanOutCache) Get(_ context.Context, key domain.ChatEventKey) (domain.FanOut, bool, error) {
	fanOut, ok := f.entries[key]
	return fanOut, ok, nil
}

func (f *fakeFanOutCache) Set(_ context.Context, key domain.ChatEventKey, fanOut domain.FanOut) error {
	f.entries[key] = fanOut
	return nil
}

func (f *fakeFanOutCache) Invalidate(_ context.Context, key domain.ChatEventKey) error {
	f.invalidated = append(f.invalidated, key)
	delete(f.entries, key)
	return nil
}

type fakeSubscriptionStarter struct {
	started []string
	err     error
}

func (f *fakeSubscriptionStarter) EnsureListening(_ context.Context, nodeID string) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, nodeID)
	return nil
}

func newPublishFixture(workflows *fakeWorkflowStore, nodes *fakeNodeStore, cache *fakeFanOutCache) *PublishService {
	return NewPublishService(PublishServiceDependencies{
		WorkflowStore: workflows,
		NodeStore:     nodes,
		Resolver:      NewResolver(ResolverDependencies{NodeStore: nodes}),
		FanOutCache:   cache,
	})
}

func TestPublishService_Publish_PersistsMetadataAndWarmsCache(t *testing.T) {
	trigger := chatRecord(domain.NodeType_Discord, "trigger", domain.Connections{
		DiscordNodeIDs: []string{"discord-b"},
	})
	trigger.Trigger = "message_created"
	trigger.ChannelID = "chan-1"

	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{
			"trigger":   trigger,
			"discord-b": chatRecord(domain.NodeType_Discord, "discord-b", domain.Connections{}),
		},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		UserID:        "user-1",
		ParentTrigger: domain.TriggerType_Discord,
		ParentID:      "trigger",
	})
	cache := newFakeFanOutCache()

	service := newPublishFixture(workflows, nodes, cache)

	descriptors, err := service.Publish(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "discord-b", descriptors[0].NodeID)

	assert.True(t, workflows.workflows["wf-1"].Published)
	assert.Equal(t, descriptors, workflows.metadata["wf-1"])

	key := domain.ChatEventKey{
		NodeType:  domain.NodeType_Discord,
		EventType: "message_created",
		ChannelID: "chan-1",
	}
	cached, ok := cache.entries[key]
	require.True(t, ok)
	assert.Equal(t, "user-1", cached.UserID)
	assert.Equal(t, "wf-1", cached.WorkflowID)
	assert.Equal(t, descriptors, cached.Descriptors)
}

func TestPublishService_Publish_FailsNamingUnsavedNode(t *testing.T) {
	unsaved := savedAction()
	unsaved.IsSaved = false

	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{
			"trigger": chatRecord(domain.NodeType_Discord, "trigger", domain.Connections{
				DiscordNodeIDs: []string{"discord-unsaved"},
			}),
			"discord-unsaved": {
				NodeID:     "discord-unsaved",
				Type:       domain.NodeType_Discord,
				WebhookURL: "https://hooks.example.com/discord-unsaved",
				Action:     unsaved,
			},
		},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_Discord,
		ParentID:      "trigger",
	})

	service := newPublishFixture(workflows, nodes, newFakeFanOutCache())

	_, err := service.Publish(context.Background(), "wf-1")
	require.Error(t, err)

	var configErr *domain.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "discord-unsaved", configErr.NodeID)
	assert.False(t, workflows.workflows["wf-1"].Published)
}

func TestPublishService_Publish_FailsOnUndeliverableDescriptor(t *testing.T) {
	malformed := chatRecord(domain.NodeType_Discord, "discord-bad", domain.Connections{})
	malformed.WebhookURL = "https://discord.com"

	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{
			"trigger": chatRecord(domain.NodeType_Discord, "trigger", domain.Connections{
				DiscordNodeIDs: []string{"discord-bad"},
			}),
			"discord-bad": malformed,
		},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_Discord,
		ParentID:      "trigger",
	})

	service := newPublishFixture(workflows, nodes, newFakeFanOutCache())

	_, err := service.Publish(context.Background(), "wf-1")
	require.Error(t, err)

	var configErr *domain.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "discord-bad", configErr.NodeID)
	assert.False(t, workflows.workflows["wf-1"].Published)
}

func TestPublishService_Publish_DriveTriggerStartsSubscription(t *testing.T) {
	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{
			"discord-a": chatRecord(domain.NodeType_Discord, "discord-a", domain.Connections{}),
		},
		drive: map[string]domain.Connections{
			"drive-trigger": {DiscordNodeIDs: []string{"discord-a"}},
		},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_Drive,
		ParentID:      "drive-trigger",
	})
	starter := &fakeSubscriptionStarter{}

	service := NewPublishService(PublishServiceDependencies{
		WorkflowStore:       workflows,
		NodeStore:           nodes,
		Resolver:            NewResolver(ResolverDependencies{NodeStore: nodes}),
		FanOutCache:         newFakeFanOutCache(),
		SubscriptionStarter: starter,
	})

	_, err := service.Publish(context.Background(), "wf-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"drive-trigger"}, starter.started)
	assert.True(t, workflows.workflows["wf-1"].Published)
}

func TestPublishService_Publish_SubscriptionStartFailureAbortsPublish(t *testing.T) {
	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{
			"discord-a": chatRecord(domain.NodeType_Discord, "discord-a", domain.Connections{}),
		},
		drive: map[string]domain.Connections{
			"drive-trigger": {DiscordNodeIDs: []string{"discord-a"}},
		},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_Drive,
		ParentID:      "drive-trigger",
	})
	starter := &fakeSubscriptionStarter{err: domain.ErrSubscriptionNotFound}

	service := NewPublishService(PublishServiceDependencies{
		WorkflowStore:       workflows,
		NodeStore:           nodes,
		Resolver:            NewResolver(ResolverDependencies{NodeStore: nodes}),
		FanOutCache:         newFakeFanOutCache(),
		SubscriptionStarter: starter,
	})

	_, err := service.Publish(context.Background(), "wf-1")
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.False(t, workflows.workflows["wf-1"].Published)
}

func TestPublishService_ComputeFanOut_RejectsMissingTrigger(t *testing.T) {
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_None,
	})

	service := newPublishFixture(workflows, &fakeNodeStore{}, newFakeFanOutCache())

	_, err := service.ComputeFanOut(context.Background(), "wf-1")
	assert.True(t, domain.IsConfigurationError(err))
}

func TestPublishService_ComputeFanOut_DriveTriggerUsesStoredConnections(t *testing.T) {
	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{
			"discord-a": chatRecord(domain.NodeType_Discord, "discord-a", domain.Connections{}),
		},
		drive: map[string]domain.Connections{
			"drive-trigger": {DiscordNodeIDs: []string{"discord-a"}},
		},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_Drive,
		ParentID:      "drive-trigger",
	})

	service := newPublishFixture(workflows, nodes, newFakeFanOutCache())

	resolution, err := service.ComputeFanOut(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"discord-a"}, descriptorIDs(resolution.Descriptors))
}

func TestPublishService_Unpublish_InvalidatesCache(t *testing.T) {
	trigger := chatRecord(domain.NodeType_Slack, "trigger", domain.Connections{})
	trigger.Trigger = "message"
	trigger.ChannelID = "chan-2"
	trigger.TeamID = "team-1"

	nodes := &fakeNodeStore{
		chat: map[string]domain.ChatRecord{"trigger": trigger},
	}
	workflows := newFakeWorkflowStore(domain.Workflow{
		ID:            "wf-1",
		ParentTrigger: domain.TriggerType_Slack,
		ParentID:      "trigger",
		Published:     true,
	})
	cache := newFakeFanOutCache()

	key := domain.ChatEventKey{
		NodeType:  domain.NodeType_Slack,
		EventType: "message",
		ChannelID: "chan-2",
		TeamID:    "team-1",
	}
	cache.entries[key] = domain.FanOut{WorkflowID: "wf-1"}

	service := newPublishFixture(workflows, nodes, cache)

	require.NoError(t, service.Unpublish(context.Background(), "wf-1"))

	assert.False(t, workflows.workflows["wf-1"].Published)
	assert.Contains(t, cache.invalidated, key)
	assert.NotContains(t, cache.entries, key)
}
