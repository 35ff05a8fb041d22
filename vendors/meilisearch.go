package vendors

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/meilisearch/meilisearch-go"
	"github.com/xiaoyuanzhu-com/my-chat-db/config"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

var (
	meiliClient     *MeiliClient
	meiliClientOnce sync.Once
	meiliLogger     = log.GetLogger("Meilisearch")
)

// MeiliClient wraps the Meilisearch client for message search
type MeiliClient struct {
	client   meilisearch.ServiceManager
	index    meilisearch.IndexManager
	indexUID string
}

// MessageDocument is the indexed shape of a finalized chat message
type MessageDocument struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	IsUser    bool   `json:"isUser"`
	Timestamp int64  `json:"timestamp"`
}

// GetMeiliClient returns the singleton Meilisearch client, nil when no host
// is configured (search then falls back to sqlite).
func GetMeiliClient() *MeiliClient {
	meiliClientOnce.Do(func() {
		cfg := config.Get()
		if cfg.MeiliHost == "" {
			meiliLogger.Debug().Msg("MEILI_HOST not configured, Meilisearch disabled")
			return
		}

		client := meilisearch.New(cfg.MeiliHost, meilisearch.WithAPIKey(cfg.MeiliAPIKey))

		// Verify connection
		if _, err := client.Health(); err != nil {
			meiliLogger.Error().Err(err).Msg("failed to connect to Meilisearch")
			return
		}

		index := client.Index(cfg.MeiliIndex)

		meiliClient = &MeiliClient{
			client:   client,
			index:    index,
			indexUID: cfg.MeiliIndex,
		}

		meiliLogger.Info().Str("host", cfg.MeiliHost).Str("index", cfg.MeiliIndex).Msg("Meilisearch initialized")
	})

	return meiliClient
}

// IndexMessage adds or updates a message document. Best effort: the caller
// treats failures as non-fatal.
func (m *MeiliClient) IndexMessage(doc MessageDocument) error {
	if m == nil {
		return nil
	}
	_, err := m.index.AddDocuments([]MessageDocument{doc}, nil)
	return err
}

// DeleteSessionDocuments removes all indexed messages of a session
func (m *MeiliClient) DeleteSessionDocuments(sessionID string) error {
	if m == nil {
		return nil
	}
	_, err := m.index.DeleteDocumentsByFilter(fmt.Sprintf("sessionId = %q", sessionID), nil)
	return err
}

// SearchMessages queries the message index
func (m *MeiliClient) SearchMessages(query string, limit int) ([]MessageDocument, error) {
	if m == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	resp, err := m.index.Search(query, &meilisearch.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON rather than poking at the hit map shape
	raw, err := json.Marshal(resp.Hits)
	if err != nil {
		return nil, err
	}
	var docs []MessageDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}

	return docs, nil
}
