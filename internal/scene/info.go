package scene

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/proxysync/internal/refcount"
	"github.com/roach88/proxysync/internal/safelist"
)

// InfoState tracks where a ProxyInfo is in its lifecycle.
type InfoState int32

const (
	InfoPendingAdd InfoState = iota // add task not yet run
	InfoAdded                       // in the "added" list, waiting for the fold
	InfoPacked                      // in the packed array
	InfoRemoving                    // packed and in the "removed" list
	InfoRetired                     // finalized; references released
)

func (s InfoState) String() string {
	switch s {
	case InfoPendingAdd:
		return "pending_add"
	case InfoAdded:
		return "added"
	case InfoPacked:
		return "packed"
	case InfoRemoving:
		return "removing"
	case InfoRetired:
		return "retired"
	default:
		return fmt.Sprintf("info_state(%d)", int32(s))
	}
}

// ProxyInfo is the scene's record of one node/proxy pair.
//
// It strongly holds the node (keeping it alive while the proxy exists) and
// the proxy's "alive" reference. The packed index is valid only between
// folds, and only while the state is Packed or Removing.
type ProxyInfo struct {
	refcount.Counted

	node        SceneNode
	proxy       Proxy
	name        string // node name at AddNode; the node may be renamed later
	packedIndex int

	state     atomic.Int32
	cancelled atomic.Bool

	link safelist.Node[*ProxyInfo]
}

func newProxyInfo(node SceneNode, proxy Proxy) *ProxyInfo {
	info := &ProxyInfo{
		node:        node,
		proxy:       proxy,
		name:        node.Base().name,
		packedIndex: -1,
	}
	info.link.Value = info
	info.Counted.Init(nil)
	return info
}

// State returns the lifecycle state. Safe from any goroutine.
func (i *ProxyInfo) State() InfoState {
	return InfoState(i.state.Load())
}

func (i *ProxyInfo) setState(s InfoState) {
	i.state.Store(int32(s))
}

// Name returns the node's name when it was added to the scene.
func (i *ProxyInfo) Name() string { return i.name }

// Node returns the node the record mirrors.
func (i *ProxyInfo) Node() SceneNode { return i.node }

// Proxy returns the proxy the record owns.
func (i *ProxyInfo) Proxy() Proxy { return i.proxy }

// PackedIndex returns the slot in the packed array, or -1.
func (i *ProxyInfo) PackedIndex() int { return i.packedIndex }

// Cancelled reports whether a removal was issued for this record.
func (i *ProxyInfo) Cancelled() bool { return i.cancelled.Load() }
