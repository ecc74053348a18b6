// Package keeper implements the Context Keeper (C8): an offloaded slice
// of conversation messages with keyword and LLM-summarization retrieval,
// and debounced persistence through the Persistence Port.
package keeper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/treetopdevs/loomteams/pkg/persistence"
	"github.com/treetopdevs/loomteams/pkg/providers"
)

// Message is one offloaded conversation entry.
type Message struct {
	Role    string
	Content string
}

const retrievalThreshold = 10_000

// Keeper holds one team's offloaded context slice.
type Keeper struct {
	mu          sync.Mutex
	id          string
	teamID      string
	topic       string
	sourceAgent string
	messages    []Message
	tokenCount  int
	metadata    map[string]any
	status      string
	createdAt   time.Time

	store         persistence.Store
	modelClient   providers.Client
	persistDebounceMS int
	dirty         bool
	flushTimer    *time.Timer
}

// Config configures a new Keeper.
type Config struct {
	ID                string
	TeamID            string
	Topic             string
	SourceAgent       string
	Metadata          map[string]any
	Store             persistence.Store
	ModelClient       providers.Client
	PersistDebounceMS int // default 0 = immediate
}

// New constructs a Keeper, restoring state from the Persistence Port if
// a row already exists for cfg.ID (reload-on-start).
func New(ctx context.Context, cfg Config) *Keeper {
	k := &Keeper{
		id:                cfg.ID,
		teamID:            cfg.TeamID,
		topic:             cfg.Topic,
		sourceAgent:       cfg.SourceAgent,
		metadata:          cfg.Metadata,
		status:            "active",
		createdAt:         time.Now(),
		store:             cfg.Store,
		modelClient:       cfg.ModelClient,
		persistDebounceMS: cfg.PersistDebounceMS,
	}
	if k.metadata == nil {
		k.metadata = map[string]any{}
	}
	if cfg.Store != nil {
		if row, err := cfg.Store.FetchKeeper(ctx, cfg.ID); err == nil {
			k.messages = make([]Message, len(row.Messages))
			for i, m := range row.Messages {
				k.messages[i] = Message{Role: m.Role, Content: m.Content}
			}
			k.topic = row.Topic
			k.sourceAgent = row.SourceAgent
			k.metadata = row.Metadata
			k.createdAt = row.CreatedAt
			k.tokenCount = row.TokenCount
			k.status = row.Status
		}
	}
	return k
}

func (k *Keeper) ID() string { return k.id }

// Store appends messages, merges metadata, recomputes token_count, and
// schedules a debounced persist. Rapid calls coalesce onto one flush.
func (k *Keeper) Store(ctx context.Context, messages []Message, metadata map[string]any) {
	k.mu.Lock()
	k.messages = append(k.messages, messages...)
	for key, val := range metadata {
		k.metadata[key] = val
	}
	k.tokenCount = estimateTokens(k.messages)
	k.dirty = true
	k.mu.Unlock()

	k.scheduleFlush(ctx)
}

// estimateTokens is a coarse approximation of ⌊len(content)/4⌋ + 4 per
// message: the real token count depends on the model's tokenizer, which
// the keeper doesn't own.
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)/4 + 4
	}
	return total
}

func (k *Keeper) scheduleFlush(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.store == nil {
		return
	}
	if k.persistDebounceMS <= 0 {
		k.flushLocked(ctx)
		return
	}
	if k.flushTimer != nil {
		return // a flush is already pending; it will pick up this write
	}
	k.flushTimer = time.AfterFunc(time.Duration(k.persistDebounceMS)*time.Millisecond, func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.flushTimer = nil
		k.flushLocked(ctx)
	})
}

// flushLocked persists current state iff dirty. Caller holds k.mu.
func (k *Keeper) flushLocked(ctx context.Context) {
	if !k.dirty || k.store == nil {
		return
	}
	rowMessages := make([]persistence.KeeperMessage, len(k.messages))
	for i, m := range k.messages {
		rowMessages[i] = persistence.KeeperMessage{Role: m.Role, Content: m.Content}
	}
	_ = k.store.UpsertKeeper(ctx, persistence.KeeperRow{
		ID: k.id, TeamID: k.teamID, Topic: k.topic, SourceAgent: k.sourceAgent,
		Messages: rowMessages, TokenCount: k.tokenCount, Metadata: k.metadata,
		Status: k.status, CreatedAt: k.createdAt,
	})
	k.dirty = false
}

// Terminate flushes synchronously iff dirty, cancelling any pending
// debounced flush. Must be called on normal shutdown.
func (k *Keeper) Terminate(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.flushTimer != nil {
		k.flushTimer.Stop()
		k.flushTimer = nil
	}
	k.flushLocked(ctx)
}

// RetrieveAll returns every offloaded message.
func (k *Keeper) RetrieveAll() []Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]Message{}, k.messages...)
}

const topKKeywordResults = 10

// Retrieve returns all messages if under threshold, else the top-K
// scored by lowercase word-set intersection with query.
func (k *Keeper) Retrieve(query string) []Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tokenCount <= retrievalThreshold {
		return append([]Message{}, k.messages...)
	}
	return topKByKeywordOverlap(k.messages, query, topKKeywordResults)
}

func topKByKeywordOverlap(messages []Message, query string, k int) []Message {
	queryWords := wordSet(query)
	type scored struct {
		msg   Message
		score int
	}
	results := make([]scored, len(messages))
	for i, m := range messages {
		results[i] = scored{msg: m, score: overlap(wordSet(m.Content), queryWords)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > k {
		results = results[:k]
	}
	out := make([]Message, len(results))
	for i, r := range results {
		out[i] = r.msg
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// SmartRetrieve attempts an LLM summarization over the offloaded
// messages; on any failure (no client configured, API error, timeout)
// it falls back to keyword retrieval. Never mutates state.
func (k *Keeper) SmartRetrieve(ctx context.Context, query string) string {
	k.mu.Lock()
	topic := k.topic
	client := k.modelClient
	k.mu.Unlock()

	if client != nil {
		prompt := fmt.Sprintf("Here are offloaded messages about %s. Answer: %s.", topic, query)
		resp, err := client.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, client.DefaultModel(), nil)
		if err == nil && resp.Content != "" {
			return resp.Content
		}
	}

	matches := k.Retrieve(query)
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("[%s]: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n")
}

// IndexEntry renders the one-line summary other agents see in their
// keeper index.
func (k *Keeper) IndexEntry() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return fmt.Sprintf("Keeper:%s topic=%s source=%s tokens=%d", k.id, k.topic, k.sourceAgent, k.tokenCount)
}

// StateSnapshot is an observability view of a Keeper's state.
type StateSnapshot struct {
	ID          string
	TeamID      string
	Topic       string
	SourceAgent string
	TokenCount  int
	MessageCount int
	Status      string
	CreatedAt   time.Time
}

func (k *Keeper) GetState() StateSnapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return StateSnapshot{
		ID: k.id, TeamID: k.teamID, Topic: k.topic, SourceAgent: k.sourceAgent,
		TokenCount: k.tokenCount, MessageCount: len(k.messages), Status: k.status,
		CreatedAt: k.createdAt,
	}
}

func (k *Keeper) Topic() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.topic
}
