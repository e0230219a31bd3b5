// internal/graph/search.go
package graph

import (
	"context"
	"sort"
	"strings"
	"time"
)

// EntityExtractor pulls named-entity strings out of free text. SearchByQuery
// prefers extracted entity names as entry-point candidates over the plain
// stopword-filtered keyword tokens extractTokens produces, the same
// "GLiNER first, keyword fallback" entry-point linking the reference graph
// store uses. Optional, duck-typed, same shape as internal/outlet/actions.go's
// NoteStore/EmailSender family: IsAvailable() lets a Store degrade cleanly
// to keyword-only linking when no extractor is wired.
type EntityExtractor interface {
	IsAvailable() bool
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// noopEntityExtractor is the zero-value default: always unavailable, so
// SearchByQuery falls back to extractTokens alone.
type noopEntityExtractor struct{}

func (noopEntityExtractor) IsAvailable() bool { return false }
func (noopEntityExtractor) ExtractEntities(context.Context, string) ([]string, error) {
	return nil, nil
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "that": true,
	"this": true, "it": true, "as": true, "be": true, "by": true, "from": true,
}

func extractTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if len(f) <= 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// recencyFactor buckets the age of a node's last_seen into the spec's
// exponential-decay schedule.
func recencyFactor(lastSeen time.Time) float64 {
	age := time.Since(lastSeen)
	switch {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 3*24*time.Hour:
		return 0.85
	case age <= 7*24*time.Hour:
		return 0.7
	case age <= 14*24*time.Hour:
		return 0.5
	case age <= 30*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

type scoredNode struct {
	node  Node
	score float64
}

// SearchByQuery runs the multi-hop GraphRAG search: entity linking (the
// wired EntityExtractor when available, stopword-filtered keyword tokens
// always), entry-point scoring with recency decay, two-hop expansion, a
// most-connected-recent fallback when nothing matches, and community
// detection over the returned entity set.
func (s *Store) SearchByQuery(ctx context.Context, query, userID string, limit int) (*SearchResult, error) {
	tokens := extractTokens(query)
	if s.entities != nil && s.entities.IsAvailable() {
		if names, err := s.entities.ExtractEntities(ctx, query); err == nil {
			for _, n := range names {
				if IsValidEntity(n) {
					tokens = append(tokens, strings.ToLower(n))
				}
			}
		}
	}

	var allNodes []Node
	if err := s.db.Where("user_id = ?", userID).Find(&allNodes).Error; err != nil {
		return nil, err
	}

	entryPoints := s.scoreEntryPoints(allNodes, tokens)

	fallback := false
	if len(entryPoints) == 0 {
		entryPoints = s.fallbackEntryPoints(allNodes, limit)
		fallback = true
	}

	sort.Slice(entryPoints, func(i, j int) bool { return entryPoints[i].score > entryPoints[j].score })
	if len(entryPoints) > limit {
		entryPoints = entryPoints[:limit]
	}

	results := make([]EntityResult, 0, len(entryPoints))
	for _, ep := range entryPoints {
		paths, err := s.expandTwoHop(ep.node, userID)
		if err != nil {
			continue
		}
		results = append(results, EntityResult{
			Name:     ep.node.Name,
			NodeType: ep.node.NodeType,
			Paths:    paths,
		})
	}

	s.assignCommunities(results, userID)

	return &SearchResult{Entities: results, Fallback: fallback}, nil
}

func (s *Store) scoreEntryPoints(nodes []Node, tokens []string) []scoredNode {
	var entries []scoredNode
	for _, n := range nodes {
		nameLower := strings.ToLower(n.Name)
		exactScore := 0.0
		matchCount := 0
		for _, t := range tokens {
			if nameLower == t {
				exactScore = 3.0
			}
			if strings.Contains(nameLower, t) {
				matchCount++
			}
		}
		if exactScore == 0 && matchCount == 0 {
			continue
		}
		raw := (exactScore + float64(matchCount)) * recencyFactor(n.LastSeen)
		entries = append(entries, scoredNode{node: n, score: raw})
	}
	return entries
}

// fallbackEntryPoints picks the most-connected recent nodes among the
// salient node types when no entry points matched the query at all.
func (s *Store) fallbackEntryPoints(nodes []Node, limit int) []scoredNode {
	salient := map[string]bool{}
	for _, t := range SalientNodeTypes {
		salient[t] = true
	}
	var candidates []Node
	for _, n := range nodes {
		if salient[n.NodeType] {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].LastSeen.After(candidates[j].LastSeen) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]scoredNode, 0, len(candidates))
	for _, n := range candidates {
		out = append(out, scoredNode{node: n, score: recencyFactor(n.LastSeen)})
	}
	return out
}

const maxOneHopPaths = 5
const maxTwoHopPaths = 3

// expandTwoHop collects up to 5 one-hop and 3 two-hop paths from entry,
// multiplying edge confidences across hops and filtering invalid entities.
func (s *Store) expandTwoHop(entry Node, userID string) ([]PathHop, error) {
	var hop1 []Edge
	if err := s.db.Where("from_name = ? AND user_id = ?", entry.Name, userID).
		Order("confidence DESC").Find(&hop1).Error; err != nil {
		return nil, err
	}

	var paths []PathHop
	oneHopCount := 0
	twoHopCount := 0

	for _, e1 := range hop1 {
		if !IsValidEntity(e1.ToName) {
			continue
		}
		if oneHopCount < maxOneHopPaths {
			paths = append(paths, PathHop{
				Node:       e1.ToName,
				Edge1Label: e1.Label,
				Confidence: e1.Confidence,
				IsActive:   e1.IsActive,
				LearnedAt:  e1.CreatedAt,
			})
			oneHopCount++
		}

		if twoHopCount >= maxTwoHopPaths {
			continue
		}
		var hop2 []Edge
		if err := s.db.Where("from_name = ? AND user_id = ?", e1.ToName, userID).
			Order("confidence DESC").Limit(maxTwoHopPaths - twoHopCount).Find(&hop2).Error; err != nil {
			continue
		}
		for _, e2 := range hop2 {
			if !IsValidEntity(e2.ToName) || e2.ToName == entry.Name {
				continue
			}
			if twoHopCount >= maxTwoHopPaths {
				break
			}
			paths = append(paths, PathHop{
				Node:       e2.ToName,
				Via:        e1.ToName,
				Edge1Label: e1.Label,
				Edge2Label: e2.Label,
				Confidence: e1.Confidence * e2.Confidence,
				IsActive:   e1.IsActive && e2.IsActive,
				LearnedAt:  e2.CreatedAt,
			})
			twoHopCount++
		}
	}
	return paths, nil
}

// assignCommunities runs union-find over the returned entities and the
// neighbors they share, labeling each component by its dominant node_type.
func (s *Store) assignCommunities(results []EntityResult, userID string) {
	if len(results) == 0 {
		return
	}
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	typeByName := map[string]string{}
	for _, r := range results {
		find(r.Name)
		typeByName[r.Name] = r.NodeType
		for _, p := range r.Paths {
			find(p.Node)
			union(r.Name, p.Node)
		}
	}

	members := map[string][]string{}
	for name := range parent {
		root := find(name)
		members[root] = append(members[root], name)
	}

	dominantType := map[string]string{}
	for root, names := range members {
		counts := map[string]int{}
		best := ""
		for _, n := range names {
			t := typeByName[n]
			if t == "" {
				continue
			}
			counts[t]++
			if best == "" || counts[t] > counts[best] {
				best = t
			}
		}
		if best == "" {
			best = "general"
		}
		dominantType[root] = best + "_topic"
	}

	for i := range results {
		root := find(results[i].Name)
		results[i].Community = dominantType[root]
		results[i].CommunityMembers = members[root]
	}
}

// GetEntityContext returns the neighborhood of a single named entity out to
// max_hops (1 or 2, as driven by expandTwoHop).
func (s *Store) GetEntityContext(name, userID string, maxHops int) (*EntityResult, error) {
	var node Node
	if err := s.db.Where("name = ? AND user_id = ?", name, userID).First(&node).Error; err != nil {
		return nil, err
	}
	paths, err := s.expandTwoHop(node, userID)
	if err != nil {
		return nil, err
	}
	if maxHops <= 1 {
		oneHop := paths[:0]
		for _, p := range paths {
			if p.Via == "" {
				oneHop = append(oneHop, p)
			}
		}
		paths = oneHop
	}
	return &EntityResult{Name: node.Name, NodeType: node.NodeType, Paths: paths}, nil
}

// FindPathsBetween does a bounded BFS between two named entities, returning
// every path discovered within max_hops.
func (s *Store) FindPathsBetween(a, b, userID string, maxHops int) ([][]string, error) {
	type frame struct {
		node string
		path []string
	}
	queue := []frame{{node: a, path: []string{a}}}
	var results [][]string
	visited := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path) > maxHops+1 {
			continue
		}
		if cur.node == b && len(cur.path) > 1 {
			results = append(results, cur.path)
			continue
		}
		key := cur.node
		if visited[key] && cur.node != a {
			continue
		}
		visited[key] = true

		var edges []Edge
		if err := s.db.Where("from_name = ? AND user_id = ? AND is_active = ?", cur.node, userID, true).Find(&edges).Error; err != nil {
			continue
		}
		for _, e := range edges {
			nextPath := append(append([]string{}, cur.path...), e.ToName)
			queue = append(queue, frame{node: e.ToName, path: nextPath})
		}
	}
	return results, nil
}
