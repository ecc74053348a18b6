// Package teamcontext implements the Shared Team Context (C3): a
// structured view over the Team Table Registry exposing the agent roster,
// the discoveries log, region claims with TTL, and a denormalized task
// status cache. It is the collaboration surface agents read and write
// through peer_* tools, modeled after the Blackboard pattern used
// elsewhere in the agent runtime but backed by the per-team Table instead
// of an in-memory map, so it is destroyed cleanly with the team.
package teamcontext

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/treetopdevs/loomteams/pkg/teamtable"
)

// ClaimTTL is how long a region claim stays live after it is taken.
// Expiry is strict: a claim is expired once now - claimed_at >= ClaimTTL.
const ClaimTTL = 5 * time.Minute

// AgentRosterEntry is the denormalized roster view of one team agent.
type AgentRosterEntry struct {
	Name   string
	Role   string
	Status string
	Model  string
}

// Discovery is a single entry in the append-only discoveries log.
type Discovery struct {
	Seq     uint64
	From    string
	Type    string
	Content string
	At      time.Time
}

// RegionKind distinguishes the three claimable region shapes.
type RegionKind string

const (
	RegionWholeFile RegionKind = "whole_file"
	RegionSymbol    RegionKind = "symbol"
	RegionLines     RegionKind = "lines"
)

// Region identifies the claimed span within a file.
type Region struct {
	Kind       RegionKind
	SymbolName string
	LineStart  int
	LineEnd    int
}

// Overlaps reports whether two regions can conflict:
//   - whole_file overlaps anything
//   - {symbol, _} is treated as whole-file (conservative)
//   - {lines, s1, e1} vs {lines, s2, e2} overlap iff s1<=e2 && s2<=e1
func (r Region) Overlaps(other Region) bool {
	if r.Kind == RegionWholeFile || other.Kind == RegionWholeFile {
		return true
	}
	if r.Kind == RegionSymbol || other.Kind == RegionSymbol {
		return true
	}
	return r.LineStart <= other.LineEnd && other.LineStart <= r.LineEnd
}

// RegionClaim is an advisory, TTL-bounded write lock on a file region.
type RegionClaim struct {
	Agent     string
	Path      string
	Region    Region
	ClaimedAt time.Time
}

func (c RegionClaim) expired(now time.Time) bool {
	return now.Sub(c.ClaimedAt) >= ClaimTTL
}

// TaskCacheEntry is the denormalized status readout cached alongside the
// durable task row so listers don't have to hit the Persistence Port.
type TaskCacheEntry struct {
	TaskID string
	Title  string
	Status string
	Owner  string
}

// ConflictError is returned by ClaimRegion when another agent already
// holds an overlapping, non-expired claim.
type ConflictError struct {
	OtherAgent  string
	OtherRegion Region
}

func (e *ConflictError) Error() string { return "region claim conflict" }

// Context is the structured Shared Team Context for one team.
type Context struct {
	teamID string
	table  *teamtable.Table
	seq    atomic.Uint64
}

// New wraps an already-created team table with the structured C3 API.
func New(teamID string, table *teamtable.Table) *Context {
	return &Context{teamID: teamID, table: table}
}

// --- Agent roster ---

// RegisterAgent inserts or updates a roster entry.
func (c *Context) RegisterAgent(entry AgentRosterEntry) {
	c.table.Set(teamtable.AgentKey(entry.Name), entry)
}

// GetAgent returns the roster entry for name, if present.
func (c *Context) GetAgent(name string) (AgentRosterEntry, bool) {
	v, ok := c.table.Get(teamtable.AgentKey(name))
	if !ok {
		return AgentRosterEntry{}, false
	}
	return v.(AgentRosterEntry), true
}

// ListAgents returns every roster entry, sorted by name for determinism.
func (c *Context) ListAgents() []AgentRosterEntry {
	var out []AgentRosterEntry
	c.table.Range(teamtable.KindAgent, func(_ teamtable.Key, value any) bool {
		out = append(out, value.(AgentRosterEntry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --- Discoveries ---

// AddDiscovery appends a new discovery, assigning it the next monotonic
// sequence number.
func (c *Context) AddDiscovery(from, discType, content string) Discovery {
	seq := c.seq.Add(1)
	d := Discovery{Seq: seq, From: from, Type: discType, Content: content, At: time.Now()}
	c.table.Set(teamtable.DiscoveryKey(seq), d)
	return d
}

// ListDiscoveries returns discoveries in seq order, optionally filtered by
// type (empty string means no filter).
func (c *Context) ListDiscoveries(discType string) []Discovery {
	var out []Discovery
	c.table.Range(teamtable.KindDiscovery, func(_ teamtable.Key, value any) bool {
		d := value.(Discovery)
		if discType == "" || d.Type == discType {
			out = append(out, d)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// --- Region claims ---

// ClaimRegion inserts a claim iff no other agent holds a live, overlapping
// claim on the same path. Re-claiming by the same agent never conflicts.
func (c *Context) ClaimRegion(agent, path string, region Region) error {
	now := time.Now()
	var conflict *ConflictError
	c.table.Range(teamtable.KindClaim, func(key teamtable.Key, value any) bool {
		claim := value.(RegionClaim)
		if claim.Path != path || claim.Agent == agent || claim.expired(now) {
			return true
		}
		if claim.Region.Overlaps(region) {
			conflict = &ConflictError{OtherAgent: claim.Agent, OtherRegion: claim.Region}
			return false
		}
		return true
	})
	if conflict != nil {
		return conflict
	}
	c.table.Set(teamtable.ClaimKey(path, agent), RegionClaim{
		Agent: agent, Path: path, Region: region, ClaimedAt: now,
	})
	return nil
}

// ReleaseRegion deletes agent's claim on path. No-op if absent.
func (c *Context) ReleaseRegion(agent, path string) {
	c.table.Delete(teamtable.ClaimKey(path, agent))
}

// ListClaims returns every live (non-expired) claim on path.
func (c *Context) ListClaims(path string) []RegionClaim {
	now := time.Now()
	var out []RegionClaim
	c.table.Range(teamtable.KindClaim, func(_ teamtable.Key, value any) bool {
		claim := value.(RegionClaim)
		if claim.Path == path && !claim.expired(now) {
			out = append(out, claim)
		}
		return true
	})
	return out
}

// ListAllClaims returns every live claim across every path.
func (c *Context) ListAllClaims() []RegionClaim {
	now := time.Now()
	var out []RegionClaim
	c.table.Range(teamtable.KindClaim, func(_ teamtable.Key, value any) bool {
		claim := value.(RegionClaim)
		if !claim.expired(now) {
			out = append(out, claim)
		}
		return true
	})
	return out
}

// --- Task cache ---

// CacheTask upserts the denormalized task readout.
func (c *Context) CacheTask(entry TaskCacheEntry) {
	c.table.Set(teamtable.TaskKey(entry.TaskID), entry)
}

// GetCachedTask returns the cached readout for taskID, if present.
func (c *Context) GetCachedTask(taskID string) (TaskCacheEntry, bool) {
	v, ok := c.table.Get(teamtable.TaskKey(taskID))
	if !ok {
		return TaskCacheEntry{}, false
	}
	return v.(TaskCacheEntry), true
}
