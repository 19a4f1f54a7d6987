// Package engine wires the core storage packages (disk, buffer, header,
// bptree) into a single façade a caller can open, issue point/range
// operations against, and close — generalizing kv/btree.go's BTree/
// KvStoreConfig into a multi-tree, pluggable-eviction store.
package engine

import (
	"fmt"
	"sync"

	"github.com/relicore/storage-engine/bptree"
	"github.com/relicore/storage-engine/buffer"
	"github.com/relicore/storage-engine/disk"
	"github.com/relicore/storage-engine/header"
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/replacer"
)

// Key is the concrete key type every tree opened through an Engine uses.
// bptree.BPlusTree is generic over any bptree.FixedKey, but an Engine picks
// one width for its whole lifetime so the CLI/demo layer above it doesn't
// need to be generic too.
type Key = int64

// DefaultPoolSize is the buffer pool size (in frames) used when a Config
// doesn't specify one.
const DefaultPoolSize = 128

// ReplacerPolicy selects the eviction strategy a Pool uses once its free
// list is exhausted.
type ReplacerPolicy int

const (
	// LRUPolicy evicts the least-recently-unpinned frame. The spec-mandated
	// default.
	LRUPolicy ReplacerPolicy = iota
	// LFUPolicy evicts the least-frequently-unpinned frame, ties broken by
	// recency.
	LFUPolicy
)

// Config configures an Engine, matching kv.KvStoreConfig's role: a plain
// struct the caller constructs directly, no external flag/config library.
type Config struct {
	// WorkingDirectory is where pages are persisted. Empty means an
	// in-memory, non-persistent store (disk.RAMDisk).
	WorkingDirectory string

	// PoolSize is the number of frames in the buffer pool. Defaults to
	// DefaultPoolSize.
	PoolSize uint

	// Policy selects the buffer pool's eviction strategy. Defaults to
	// LRUPolicy.
	Policy ReplacerPolicy
}

// headerPageID is the page the store's HeaderPage always lives at: the
// very first page any fresh Engine allocates, and therefore always
// fetchable at this id when reopening an existing store.
const headerPageID = page.PageID(0)

// Engine is an open storage engine: a buffer pool, a HeaderPage directory
// of named trees, and the set of trees opened so far.
type Engine struct {
	mu    sync.Mutex
	pool  *buffer.Pool
	hdr   *header.Header
	trees map[string]*bptree.BPlusTree[Key]
}

// Open creates or reopens a store per cfg.
func Open(cfg Config) (*Engine, error) {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	d, err := openDisk(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: opening disk: %w", err)
	}

	pool := buffer.NewPool(cfg.PoolSize, d, newReplacer(cfg.Policy))

	hdr, err := openOrCreateHeader(pool)
	if err != nil {
		return nil, fmt.Errorf("engine: opening header: %w", err)
	}

	return &Engine{
		pool:  pool,
		hdr:   hdr,
		trees: make(map[string]*bptree.BPlusTree[Key]),
	}, nil
}

func openDisk(cfg Config) (disk.Manager, error) {
	if cfg.WorkingDirectory == "" {
		return disk.NewRAMDisk(disk.MaxPagesOnDisk), nil
	}
	return disk.NewPersistentDisk(cfg.WorkingDirectory)
}

func newReplacer(policy ReplacerPolicy) replacer.Replacer[page.FrameID] {
	if policy == LFUPolicy {
		return replacer.NewLFUReplacer[page.FrameID]()
	}
	return replacer.NewLRUReplacer[page.FrameID]()
}

func openOrCreateHeader(pool *buffer.Pool) (*header.Header, error) {
	if hdr, err := header.Open(pool, headerPageID); err == nil {
		return hdr, nil
	}
	return header.New(pool)
}

// Tree returns the named tree, creating an empty one if it doesn't already
// exist. The tree is cached on the Engine so repeated calls with the same
// name return the same instance.
func (e *Engine) Tree(name string) (*bptree.BPlusTree[Key], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.trees[name]; ok {
		return t, nil
	}

	t, err := bptree.New[Key](name, e.pool, e.hdr)
	if err != nil {
		return nil, err
	}
	e.trees[name] = t
	return t, nil
}

// Trees lists every tree name the store currently tracks.
func (e *Engine) Trees() []string {
	return e.hdr.Names()
}

// Get looks up key in the named tree.
func (e *Engine) Get(tree string, key Key) (bptree.RID, error) {
	t, err := e.Tree(tree)
	if err != nil {
		return bptree.RID{}, err
	}
	return t.GetValue(key)
}

// Put inserts key/rid into the named tree, failing with
// storageerr.ErrKeyExists if key is already present.
func (e *Engine) Put(tree string, key Key, rid bptree.RID) error {
	t, err := e.Tree(tree)
	if err != nil {
		return err
	}
	return t.Insert(key, rid)
}

// Delete removes key from the named tree.
func (e *Engine) Delete(tree string, key Key) error {
	t, err := e.Tree(tree)
	if err != nil {
		return err
	}
	return t.Remove(key)
}

// Scan returns every key/RID pair in the named tree, in ascending key
// order. Intended for small trees (CLI/debug use); large scans should use
// bptree.BPlusTree.Begin/Seek directly to avoid materializing the result.
func (e *Engine) Scan(tree string) ([]bptree.RID, []Key, error) {
	t, err := e.Tree(tree)
	if err != nil {
		return nil, nil, err
	}

	it, err := t.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	var keys []Key
	var rids []bptree.RID
	for it.Valid() {
		keys = append(keys, it.Key())
		rids = append(rids, it.RID())
		if err := it.Next(); err != nil {
			return nil, nil, err
		}
	}
	return rids, keys, nil
}

// DebugString reports the store's current size, matching
// kv/bufferpool.go's GetDebugInfo/kv/btree.go's GetDebugInformation hand-
// built debug string idiom rather than a structured logger.
func (e *Engine) DebugString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("engine: %d tree(s) open: %v", len(e.trees), e.hdr.Names())
}

// Flush writes every dirty page to disk without closing the store.
func (e *Engine) Flush() error {
	return e.pool.FlushAllPages()
}

// Close flushes and closes the underlying disk. Once Close returns, the
// Engine must not be used again.
func (e *Engine) Close() error {
	return e.pool.Close()
}
