// Package workflowmem keeps lightweight references to the workflows
// discussed in a conversation: a bounded, LRU-evicted set with
// alias-based search, so the agent layer can recall "which workflow did
// we call the approval one" without carrying full specifications in the
// context window.
package workflowmem

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Actions recorded against a reference.
const (
	ActionCreated   = "created"
	ActionModified  = "modified"
	ActionDiscussed = "discussed"
	ActionViewed    = "viewed"
)

// DefaultMaxReferences bounds a Memory when no cap is given.
const DefaultMaxReferences = 50

// abbreviations maps domain words to the short forms users actually
// type, for alias generation.
var abbreviations = map[string]string{
	"approval":    "appr",
	"document":    "doc",
	"management":  "mgmt",
	"request":     "req",
	"process":     "proc",
	"workflow":    "wf",
	"system":      "sys",
	"application": "app",
}

// Reference is a compact pointer to a workflow, small enough to keep
// dozens of them outside the main context window.
type Reference struct {
	SpecID    string
	Name      string
	Action    string
	Timestamp time.Time
	Aliases   []string
	Tags      map[string]struct{}
}

// HasTag reports whether the reference carries the given tag.
func (r *Reference) HasTag(tag string) bool {
	_, ok := r.Tags[tag]
	return ok
}

// ReferenceRecord is the serializable form of a Reference, for callers
// that persist references alongside conversation state.
type ReferenceRecord struct {
	SpecID    string    `json:"spec_id"`
	Name      string    `json:"name"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Aliases   []string  `json:"aliases"`
	Tags      []string  `json:"tags"`
}

// Stats summarizes a Memory for monitoring.
type Stats struct {
	TotalWorkflows int            `json:"total_workflows"`
	MaxReferences  int            `json:"max_references"`
	ActionCounts   map[string]int `json:"actions_count"`
	Tags           []string       `json:"tags"`
}

// Memory is the per-conversation reference set. It is purely in-memory;
// durability, when needed, rides on Export/Import at the call site.
// All methods are safe for concurrent use.
type Memory struct {
	maxReferences int

	mu          sync.RWMutex
	references  map[string]*Reference
	accessOrder []string // least-recently-touched first
}

// New creates a Memory bounded to maxReferences entries. A
// non-positive cap falls back to DefaultMaxReferences.
func New(maxReferences int) *Memory {
	if maxReferences <= 0 {
		maxReferences = DefaultMaxReferences
	}
	return &Memory{
		maxReferences: maxReferences,
		references:    make(map[string]*Reference),
	}
}

// Track adds or refreshes a workflow reference. On an existing id the
// name, action, and timestamp are overwritten and the entry moves to
// most-recently-touched. Nil aliases are auto-generated from the name;
// nil tags become empty. Inserting past the cap evicts the
// least-recently-touched reference.
func (m *Memory) Track(specID, name, action string, aliases []string, tags []string) {
	if aliases == nil {
		aliases = GenerateAliases(name)
	}
	tagSet := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tagSet[tag] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.references[specID] = &Reference{
		SpecID:    specID,
		Name:      name,
		Action:    action,
		Timestamp: time.Now(),
		Aliases:   aliases,
		Tags:      tagSet,
	}
	m.touchLocked(specID)

	if len(m.references) > m.maxReferences {
		oldest := m.accessOrder[0]
		m.accessOrder = m.accessOrder[1:]
		delete(m.references, oldest)
	}
}

// touchLocked moves specID to the most-recently-touched end. Caller
// holds m.mu.
func (m *Memory) touchLocked(specID string) {
	for i, id := range m.accessOrder {
		if id == specID {
			m.accessOrder = append(m.accessOrder[:i], m.accessOrder[i+1:]...)
			break
		}
	}
	m.accessOrder = append(m.accessOrder, specID)
}

// Get returns the reference for specID and refreshes its recency.
func (m *Memory) Get(specID string) (*Reference, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.references[specID]
	if !ok {
		return nil, false
	}
	m.touchLocked(specID)
	return copyReference(ref), true
}

// Search returns references whose name or any alias contains the query
// (case-insensitive), most recent first.
func (m *Memory) Search(query string) []*Reference {
	q := strings.ToLower(query)

	m.mu.RLock()
	var matches []*Reference
	for _, ref := range m.references {
		if referenceMatches(ref, q) {
			matches = append(matches, copyReference(ref))
		}
	}
	m.mu.RUnlock()

	sortByRecency(matches)
	return matches
}

func referenceMatches(ref *Reference, q string) bool {
	if strings.Contains(strings.ToLower(ref.Name), q) {
		return true
	}
	for _, alias := range ref.Aliases {
		if strings.Contains(strings.ToLower(alias), q) {
			return true
		}
	}
	return false
}

// Recent returns up to limit references in most-recently-touched
// order. A non-positive limit returns all of them.
func (m *Memory) Recent(limit int) []*Reference {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := len(m.accessOrder) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	recent := m.accessOrder[start:]

	out := make([]*Reference, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		if ref, ok := m.references[recent[i]]; ok {
			out = append(out, copyReference(ref))
		}
	}
	return out
}

// ByAction returns references with the given action, most recent first.
func (m *Memory) ByAction(action string) []*Reference {
	m.mu.RLock()
	var matches []*Reference
	for _, ref := range m.references {
		if ref.Action == action {
			matches = append(matches, copyReference(ref))
		}
	}
	m.mu.RUnlock()

	sortByRecency(matches)
	return matches
}

// ByTag returns references carrying the given tag, most recent first.
func (m *Memory) ByTag(tag string) []*Reference {
	m.mu.RLock()
	var matches []*Reference
	for _, ref := range m.references {
		if ref.HasTag(tag) {
			matches = append(matches, copyReference(ref))
		}
	}
	m.mu.RUnlock()

	sortByRecency(matches)
	return matches
}

// FormatForContext renders the most recent references as compact lines
// suitable for prompt injection. Returns "" when the memory is empty.
func (m *Memory) FormatForContext(limit int) string {
	recent := m.Recent(limit)
	if len(recent) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Recent workflows:")
	for _, ref := range recent {
		b.WriteString("\n- ")
		b.WriteString(ref.Action)
		b.WriteString(": ")
		b.WriteString(ref.Name)
		b.WriteString(" (")
		b.WriteString(ref.SpecID)
		b.WriteString(")")
	}
	return b.String()
}

// Stats summarizes the memory contents.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actionCounts := make(map[string]int)
	tagSet := make(map[string]struct{})
	for _, ref := range m.references {
		actionCounts[ref.Action]++
		for tag := range ref.Tags {
			tagSet[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return Stats{
		TotalWorkflows: len(m.references),
		MaxReferences:  m.maxReferences,
		ActionCounts:   actionCounts,
		Tags:           tags,
	}
}

// Len returns the number of tracked references.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.references)
}

// Clear drops every reference.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references = make(map[string]*Reference)
	m.accessOrder = nil
}

// Export returns all references as serializable records.
func (m *Memory) Export() []ReferenceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ReferenceRecord, 0, len(m.accessOrder))
	for _, id := range m.accessOrder {
		ref, ok := m.references[id]
		if !ok {
			continue
		}
		tags := make([]string, 0, len(ref.Tags))
		for tag := range ref.Tags {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		out = append(out, ReferenceRecord{
			SpecID:    ref.SpecID,
			Name:      ref.Name,
			Action:    ref.Action,
			Timestamp: ref.Timestamp,
			Aliases:   append([]string(nil), ref.Aliases...),
			Tags:      tags,
		})
	}
	return out
}

// Import replays records through Track, preserving the given order as
// the access order.
func (m *Memory) Import(records []ReferenceRecord) {
	for _, rec := range records {
		action := rec.Action
		if action == "" {
			action = ActionDiscussed
		}
		aliases := rec.Aliases
		if aliases == nil {
			aliases = GenerateAliases(rec.Name)
		}
		m.Track(rec.SpecID, rec.Name, action, aliases, rec.Tags)
	}
}

// GenerateAliases derives search aliases from a workflow name: the
// lower-cased full name, each word when the name is multi-word, and
// abbreviation-substituted variants ("Document Approval" yields
// "doc approval" and "document appr").
func GenerateAliases(name string) []string {
	nameLower := strings.ToLower(name)

	seen := make(map[string]struct{})
	var aliases []string
	add := func(alias string) {
		if alias == "" {
			return
		}
		if _, dup := seen[alias]; dup {
			return
		}
		seen[alias] = struct{}{}
		aliases = append(aliases, alias)
	}

	add(nameLower)

	words := strings.Fields(nameLower)
	if len(words) > 1 {
		for _, word := range words {
			add(word)
		}
	}

	for word, abbr := range abbreviations {
		if strings.Contains(nameLower, word) {
			add(strings.ReplaceAll(nameLower, word, abbr))
		}
	}

	return aliases
}

func copyReference(ref *Reference) *Reference {
	tags := make(map[string]struct{}, len(ref.Tags))
	for tag := range ref.Tags {
		tags[tag] = struct{}{}
	}
	return &Reference{
		SpecID:    ref.SpecID,
		Name:      ref.Name,
		Action:    ref.Action,
		Timestamp: ref.Timestamp,
		Aliases:   append([]string(nil), ref.Aliases...),
		Tags:      tags,
	}
}

func sortByRecency(refs []*Reference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Timestamp.After(refs[j].Timestamp)
	})
}
