package resolver

import (
	"context"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/rs/zerolog/log"
)

// Resolver turns "workflow X was triggered" into the ordered list of concrete
// action descriptors reachable from the trigger node. It is purely a
// read-and-assemble operation; no side effects.
type Resolver struct {
	nodes domain.NodeStore
}

type ResolverDependencies struct {
	NodeStore domain.NodeStore
}

func NewResolver(deps ResolverDependencies) *Resolver {
	return &Resolver{
		nodes: deps.NodeStore,
	}
}

// Resolution carries the resolved fan-out plus the ids of reachable nodes
// whose action was never saved. Publishing must fail while UnsavedNodeIDs is
// non-empty; dispatch simply skips them.
type Resolution struct {
	Descriptors    []domain.ActionDescriptor
	UnsavedNodeIDs []string
}

// Resolve walks the connection graph starting at a chat trigger node.
// Traversal is depth-first in edge-declaration order; document-workspace
// edges are terminal. Every node is entered at most once per pass, so a
// cyclic graph terminates instead of recursing unboundedly.
func (r *Resolver) Resolve(ctx context.Context, t domain.NodeType, nodeID string) (Resolution, error) {
	if t != domain.NodeType_Discord && t != domain.NodeType_Slack {
		return Resolution{}, fmt.Errorf("unsupported trigger type: %s", t)
	}

	record, err := r.nodes.GetChatRecord(ctx, t, nodeID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load trigger record %s: %w", nodeID, err)
	}

	pass := newResolvePass(r.nodes)
	pass.visited[record.NodeID] = struct{}{}

	if err := pass.visit(ctx, record); err != nil {
		return Resolution{}, err
	}

	return pass.resolution, nil
}

// ResolveConnections resolves a pre-supplied edge set. Change-feed triggers
// have no chat record of their own to re-fetch, only stored connections.
func (r *Resolver) ResolveConnections(ctx context.Context, conns domain.Connections) (Resolution, error) {
	pass := newResolvePass(r.nodes)

	if err := pass.visitEdges(ctx, conns); err != nil {
		return Resolution{}, err
	}

	return pass.resolution, nil
}

type resolvePass struct {
	nodes      domain.NodeStore
	visited    map[string]struct{}
	collected  map[string]struct{}
	resolution Resolution
}

func newResolvePass(nodes domain.NodeStore) *resolvePass {
	return &resolvePass{
		nodes:     nodes,
		visited:   map[string]struct{}{},
		collected: map[string]struct{}{},
	}
}

func (p *resolvePass) visit(ctx context.Context, record domain.ChatRecord) error {
	return p.visitEdges(ctx, record.Connections)
}

func (p *resolvePass) visitEdges(ctx context.Context, conns domain.Connections) error {
	edges := conns.Ordered()

	// Recurse into chat-destination edges first. The visited set is the
	// cycle guard: a node already entered in this pass is never re-entered.
	for _, edge := range edges {
		if edge.Type == domain.NodeType_Notion {
			continue
		}

		if _, seen := p.visited[edge.NodeID]; seen {
			log.Debug().Str("nodeID", edge.NodeID).Msg("Skipping already visited node")
			continue
		}
		p.visited[edge.NodeID] = struct{}{}

		record, err := p.nodes.GetChatRecord(ctx, edge.Type, edge.NodeID)
		if err != nil {
			return fmt.Errorf("failed to load %s record %s: %w", edge.Type, edge.NodeID, err)
		}

		if err := p.visit(ctx, record); err != nil {
			return err
		}
	}

	// Then collect a descriptor for every edge, in declaration order.
	for _, edge := range edges {
		if _, done := p.collected[edge.NodeID]; done {
			continue
		}
		p.collected[edge.NodeID] = struct{}{}

		if err := p.collect(ctx, edge); err != nil {
			return err
		}
	}

	return nil
}

func (p *resolvePass) collect(ctx context.Context, edge domain.Edge) error {
	if edge.Type == domain.NodeType_Notion {
		node, err := p.nodes.GetNotionNode(ctx, edge.NodeID)
		if err != nil {
			return fmt.Errorf("failed to load notion record %s: %w", edge.NodeID, err)
		}

		if node.Action.IsEmpty() {
			return nil
		}
		if !node.Action.IsSaved {
			p.resolution.UnsavedNodeIDs = append(p.resolution.UnsavedNodeIDs, node.NodeID)
			return nil
		}

		p.resolution.Descriptors = append(p.resolution.Descriptors, domain.ActionDescriptor{
			NodeType:    domain.NodeType_Notion,
			NodeID:      node.NodeID,
			TargetRef:   node.TargetRef(),
			AccessToken: node.AccessToken,
			Action:      node.Action,
			Properties:  node.Properties,
		})

		return nil
	}

	record, err := p.nodes.GetChatRecord(ctx, edge.Type, edge.NodeID)
	if err != nil {
		return fmt.Errorf("failed to load %s record %s: %w", edge.Type, edge.NodeID, err)
	}

	if record.Action.IsEmpty() || record.WebhookURL == "" {
		return nil
	}
	if !record.Action.IsSaved {
		p.resolution.UnsavedNodeIDs = append(p.resolution.UnsavedNodeIDs, record.NodeID)
		return nil
	}

	p.resolution.Descriptors = append(p.resolution.Descriptors, domain.ActionDescriptor{
		NodeType:    record.Type,
		NodeID:      record.NodeID,
		WebhookURL:  record.WebhookURL,
		AccessToken: record.AccessToken,
		Action:      record.Action,
	})

	return nil
}
