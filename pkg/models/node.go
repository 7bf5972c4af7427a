// Package models defines the workflow graph, execution and scheduling models shared by every component.
package models

// NodeType is the closed set of node kinds a workflow graph can contain.
type NodeType string

const (
	NodeTypeTrigger      NodeType = "TRIGGER"
	NodeTypeStart        NodeType = "START"
	NodeTypeIf           NodeType = "IF"
	NodeTypeSwitch       NodeType = "SWITCH"
	NodeTypeSwap         NodeType = "SWAP"
	NodeTypeLending      NodeType = "LENDING"
	NodeTypePerps        NodeType = "PERPS"
	NodeTypePriceOracle  NodeType = "PRICE_ORACLE"
	NodeTypeLLMTransform NodeType = "LLM_TRANSFORM"
	NodeTypeSlack        NodeType = "SLACK"
	NodeTypeTelegram     NodeType = "TELEGRAM"
	NodeTypeEmail        NodeType = "EMAIL"
	NodeTypeWallet       NodeType = "WALLET"
	NodeTypeTimeBlock    NodeType = "TIME_BLOCK"
	NodeTypeDelay        NodeType = "DELAY"
	NodeTypeLog          NodeType = "LOG"
	NodeTypeWebhook      NodeType = "WEBHOOK"
	NodeTypeHTTPRequest  NodeType = "HTTP_REQUEST"
	NodeTypeTransform    NodeType = "TRANSFORM"
	NodeTypeEnd          NodeType = "END"
)

// AllNodeTypes lists every known node type.
var AllNodeTypes = []NodeType{
	NodeTypeTrigger, NodeTypeStart, NodeTypeIf, NodeTypeSwitch, NodeTypeSwap,
	NodeTypeLending, NodeTypePerps, NodeTypePriceOracle, NodeTypeLLMTransform,
	NodeTypeSlack, NodeTypeTelegram, NodeTypeEmail, NodeTypeWallet, NodeTypeTimeBlock,
	NodeTypeDelay, NodeTypeLog, NodeTypeWebhook, NodeTypeHTTPRequest, NodeTypeTransform,
	NodeTypeEnd,
}

// IsValid reports whether t is one of the known node types.
func (t NodeType) IsValid() bool {
	for _, known := range AllNodeTypes {
		if known == t {
			return true
		}
	}

	return false
}

// IsPassthrough reports whether nodes of this type forward the run's initial
// input without invoking a processor or writing a node execution record.
func (t NodeType) IsPassthrough() bool {
	return t == NodeTypeTrigger || t == NodeTypeStart
}

// IsBranch reports whether the node selects its outgoing edge via branchToFollow.
func (t NodeType) IsBranch() bool {
	return t == NodeTypeIf || t == NodeTypeSwitch
}

// Position is the editor canvas location of a node. It has no runtime meaning.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorkflowNode is a node instance inside a workflow definition.
type WorkflowNode struct {
	ID       string         `json:"id"             validate:"required"`
	Type     NodeType       `json:"type"           validate:"required"`
	Name     string         `json:"name,omitempty"`
	Config   map[string]any `json:"config"`
	Position Position       `json:"position"`
}

// ContinueOnError reports whether a failure of this node should not abort the run.
func (n *WorkflowNode) ContinueOnError() bool {
	if n.Config == nil {
		return false
	}

	value, ok := n.Config["continueOnError"].(bool)

	return ok && value
}
