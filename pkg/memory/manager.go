package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/harun/stepwise/internal/observability"
	"github.com/harun/stepwise/internal/tracing"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func init() {
	sqlite_vec.Auto()
}

// InMemoryDB opens a private database that disappears on Close
const InMemoryDB = ":memory:"

const (
	tracerName         = "stepwise.memory"
	defaultMaxEpisodic = 1000
	defaultMaxWorking  = 20
	defaultTopK        = 5
	scanLimit          = 5000
)

// Status describes the current contents of a Manager
type Status struct {
	SemanticCount         int      `json:"semantic_count"`
	EpisodicCount         int      `json:"episodic_count"`
	WorkingCount          int      `json:"working_count"`
	VectorSearch          bool     `json:"vector_search"`
	EmbeddingCacheHitRate *float64 `json:"embedding_cache_hit_rate,omitempty"`
}

// Config holds memory manager configuration
type Config struct {
	DBPath            string
	Logger            zerolog.Logger
	EmbeddingProvider EmbeddingProvider // Optional, if nil semantic recall uses keyword overlap
	MaxEpisodic       int
	MaxWorking        int
}

// Manager implements Store on sqlite with an LRU working memory
type Manager struct {
	db                *sql.DB
	logger            zerolog.Logger
	embeddingProvider EmbeddingProvider
	working           *WorkingMemory
	maxEpisodic       int

	mu     sync.Mutex
	closed bool
	stats  struct {
		cacheHits   int
		cacheMisses int
	}
}

var _ Store = (*Manager)(nil)

// NewManager opens (or creates) the memory database
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, ErrDBPathMissing
	}
	if cfg.MaxEpisodic <= 0 {
		cfg.MaxEpisodic = defaultMaxEpisodic
	}
	if cfg.MaxWorking <= 0 {
		cfg.MaxWorking = defaultMaxWorking
	}

	if cfg.DBPath != InMemoryDB {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if cfg.DBPath != InMemoryDB {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	working, err := NewWorkingMemory(cfg.MaxWorking)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create working memory: %w", err)
	}

	m := &Manager{
		db:                db,
		logger:            cfg.Logger,
		embeddingProvider: cfg.EmbeddingProvider,
		working:           working,
		maxEpisodic:       cfg.MaxEpisodic,
	}

	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m.logger.Debug().
		Str("db", cfg.DBPath).
		Bool("vector_search", m.embeddingProvider != nil).
		Msg("Memory manager initialized")
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return err
	}

	if m.embeddingProvider != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
				memory_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, m.embeddingProvider.Dimension())
		if _, err := m.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}
	return nil
}

// Remember stores content and returns its id. Working memories use
// metadata["key"] as their id when present.
func (m *Manager) Remember(ctx context.Context, content string, kind Kind, metadata map[string]interface{}) (string, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.remember", attribute.String("kind", string(kind)))
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordMemoryOperation(string(kind), "remember", time.Since(start)) }()

	id, err := m.remember(ctx, content, kind, metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

func (m *Manager) remember(ctx context.Context, content string, kind Kind, metadata map[string]interface{}) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	meta := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["type"] = string(kind)

	switch kind {
	case Working:
		key, _ := meta["key"].(string)
		if key == "" {
			generated, err := gonanoid.New()
			if err != nil {
				return "", fmt.Errorf("failed to generate key: %w", err)
			}
			key = generated
		}
		if err := m.checkOpen(); err != nil {
			return "", err
		}
		m.working.Set(key, content)
		return key, nil
	case Semantic, Episodic:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var embedding []float32
	if kind == Semantic && m.embeddingProvider != nil {
		vec, err := m.embed(ctx, content)
		if err != nil {
			logger := tracing.LoggerFromContext(ctx, m.logger)
			logger.Warn().Err(err).Msg("Failed to embed memory, storing without vector")
		} else {
			embedding = vec
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO memories (id, kind, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
		id, string(kind), content, string(metaJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert memory: %w", err)
	}

	if embedding != nil {
		blob, err := sqlite_vec.SerializeFloat32(embedding)
		if err != nil {
			return "", fmt.Errorf("failed to serialize embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO memory_vectors (memory_id, embedding) VALUES (?, ?)", id, blob,
		); err != nil {
			return "", fmt.Errorf("failed to store embedding: %w", err)
		}
	}

	if kind == Episodic {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memories
			WHERE kind = ? AND rowid NOT IN (
				SELECT rowid FROM memories WHERE kind = ? ORDER BY rowid DESC LIMIT ?
			)
		`, string(Episodic), string(Episodic), m.maxEpisodic); err != nil {
			return "", fmt.Errorf("failed to prune episodic memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit memory: %w", err)
	}
	return id, nil
}

// embed returns the embedding for content, consulting the cache first
func (m *Manager) embed(ctx context.Context, content string) ([]float32, error) {
	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])

	var cached []byte
	err := m.db.QueryRowContext(ctx, "SELECT embedding FROM embedding_cache WHERE content_hash = ?", contentHash).Scan(&cached)
	if err == nil {
		var embedding []float32
		if err := json.Unmarshal(cached, &embedding); err == nil {
			m.mu.Lock()
			m.stats.cacheHits++
			m.mu.Unlock()
			return embedding, nil
		}
	}

	m.mu.Lock()
	m.stats.cacheMisses++
	m.mu.Unlock()

	embedding, err := m.embeddingProvider.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if want := m.embeddingProvider.Dimension(); len(embedding) != want {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(embedding), want)
	}

	encoded, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	if _, err := m.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
		contentHash, encoded, len(embedding), time.Now().Unix(),
	); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to cache embedding")
	}
	return embedding, nil
}

// Recall returns up to topK memories of kind ranked by relevance to query.
// An empty query returns the most recent memories.
func (m *Manager) Recall(ctx context.Context, query string, kind Kind, topK int) ([]Item, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.recall",
		attribute.String("kind", string(kind)),
		attribute.Int("top_k", topK),
	)
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordMemoryOperation(string(kind), "recall", time.Since(start)) }()

	if topK <= 0 {
		topK = defaultTopK
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var (
		items []Item
		err   error
	)
	switch kind {
	case Working:
		items = m.recallWorking(topK)
	case Semantic:
		if m.embeddingProvider != nil && strings.TrimSpace(query) != "" {
			items, err = m.vectorSearch(ctx, query, topK)
			if err != nil {
				logger := tracing.LoggerFromContext(ctx, m.logger)
				logger.Warn().Err(err).Msg("Vector search failed, using keyword overlap")
				items, err = m.keywordSearch(ctx, query, Semantic, topK)
			}
		} else {
			items, err = m.keywordSearch(ctx, query, Semantic, topK)
		}
	case Episodic:
		items, err = m.keywordSearch(ctx, query, Episodic, topK)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return items, nil
}

func (m *Manager) recallWorking(topK int) []Item {
	keys := m.working.Keys()
	items := make([]Item, 0, len(keys))
	for i := len(keys) - 1; i >= 0 && len(items) < topK; i-- {
		value, ok := m.working.Get(keys[i])
		if !ok {
			continue
		}
		items = append(items, Item{
			ID:       keys[i],
			Content:  value,
			Metadata: map[string]interface{}{"key": keys[i], "type": string(Working)},
			Score:    1,
			Kind:     Working,
		})
	}
	return items
}

func (m *Manager) vectorSearch(ctx context.Context, query string, topK int) ([]Item, error) {
	embedding, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.metadata, m.created_at, vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		ORDER BY distance ASC
		LIMIT ?
	`, blob, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item     Item
			metadata sql.NullString
			created  int64
			distance float64
		)
		if err := rows.Scan(&item.ID, &item.Content, &metadata, &created, &distance); err != nil {
			return nil, err
		}
		item.Kind = Semantic
		item.Metadata = decodeMetadata(metadata)
		item.CreatedAt = time.Unix(0, created)
		item.Score = 1.0 - distance
		items = append(items, item)
	}
	return items, rows.Err()
}

// keywordSearch ranks stored memories by the share of query terms they
// contain. A memory containing the whole query scores 1.
func (m *Manager) keywordSearch(ctx context.Context, query string, kind Kind, topK int) ([]Item, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT id, content, metadata, created_at FROM memories WHERE kind = ? ORDER BY rowid DESC LIMIT ?",
		string(kind), scanLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lowerQuery := strings.ToLower(strings.TrimSpace(query))
	terms := queryTerms(lowerQuery)

	var items []Item
	for rows.Next() {
		var (
			item     Item
			metadata sql.NullString
			created  int64
		)
		if err := rows.Scan(&item.ID, &item.Content, &metadata, &created); err != nil {
			return nil, err
		}

		if lowerQuery == "" {
			item.Score = 1
		} else {
			item.Score = overlapScore(strings.ToLower(item.Content), lowerQuery, terms)
			if item.Score <= 0 {
				continue
			}
		}

		item.Kind = kind
		item.Metadata = decodeMetadata(metadata)
		item.CreatedAt = time.Unix(0, created)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive newest first, so a stable sort keeps recency as the tiebreak.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > topK {
		items = items[:topK]
	}
	return items, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "and": true, "or": true,
	"it": true, "be": true, "with": true, "at": true, "by": true, "as": true,
}

func queryTerms(lowerQuery string) []string {
	fields := strings.FieldsFunc(lowerQuery, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func overlapScore(lowerContent, lowerQuery string, terms []string) float64 {
	if strings.Contains(lowerContent, lowerQuery) {
		return 1
	}
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, term := range terms {
		if strings.Contains(lowerContent, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func decodeMetadata(raw sql.NullString) map[string]interface{} {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil
	}
	return meta
}

// GetContext returns the top maxItems/3 semantic and episodic memories for
// query plus every working memory entry.
func (m *Manager) GetContext(ctx context.Context, query string, maxItems int) (Context, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.context", attribute.Int("max_items", maxItems))
	defer span.End()

	out := Context{Working: map[string]string{}}
	if err := m.checkOpen(); err != nil {
		return out, err
	}

	if per := maxItems / 3; per > 0 {
		semantic, err := m.Recall(ctx, query, Semantic, per)
		if err != nil {
			return out, fmt.Errorf("semantic recall: %w", err)
		}
		episodic, err := m.Recall(ctx, query, Episodic, per)
		if err != nil {
			return out, fmt.Errorf("episodic recall: %w", err)
		}
		out.Semantic = semantic
		out.Episodic = episodic
	}

	out.Working = m.working.Snapshot()
	return out, nil
}

// SetWorking stores a working memory value under key
func (m *Manager) SetWorking(key, value string) {
	m.working.Set(key, value)
}

// GetWorking returns the working memory value under key
func (m *Manager) GetWorking(key string) (string, bool) {
	return m.working.Get(key)
}

// Status returns counts for each kind
func (m *Manager) Status() Status {
	var status Status
	status.VectorSearch = m.embeddingProvider != nil
	status.WorkingCount = m.working.Len()

	if m.checkOpen() == nil {
		m.db.QueryRow("SELECT COUNT(*) FROM memories WHERE kind = ?", string(Semantic)).Scan(&status.SemanticCount)
		m.db.QueryRow("SELECT COUNT(*) FROM memories WHERE kind = ?", string(Episodic)).Scan(&status.EpisodicCount)
	}

	m.mu.Lock()
	total := m.stats.cacheHits + m.stats.cacheMisses
	if total > 0 {
		rate := float64(m.stats.cacheHits) / float64(total)
		status.EmbeddingCacheHitRate = &rate
	}
	m.mu.Unlock()

	return status
}

func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the memory database. Further calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Debug().Msg("Closing memory manager")
	return m.db.Close()
}
