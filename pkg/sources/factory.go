// Package sources provides curve repositories: where the engine reads the
// inventory and consumption curves of a location and week from.
//
// Available repositories:
//   - PostgresRepository: the products and curves tables, via lib/pq
//   - HTTPRepository: any REST API returning curves as JSON
//   - MemoryRepository: curves held in process
package sources

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// Deps carries the shared clients a repository may need.
type Deps struct {
	DB         *sql.DB
	HTTPClient *http.Client
}

// New creates a repository based on kind and a generic configuration map.
//
// Supported kinds:
//   - "postgres": requires deps.DB
//   - "http": requires the "url" config key
//   - "memory": an empty MemoryRepository
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, deps Deps) (curves.Repository, error) {
	switch kind {
	case "postgres":
		if deps.DB == nil {
			return nil, errors.New("postgres source requires a database connection")
		}
		return NewPostgresRepository(deps.DB), nil
	case "http":
		return newHTTP(config, deps.HTTPClient)
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be postgres, http, or memory)", kind)
	}
}

func newHTTP(config map[string]string, client *http.Client) (curves.Repository, error) {
	repo := &HTTPRepository{
		URL:         config["url"],
		Method:      config["method"],
		Body:        config["body"],
		CurvesPath:  config["curvesPath"],
		ProductPath: config["productPath"],
		OffsetsPath: config["offsetsPath"],
		ValuesPath:  config["valuesPath"],
		HealthURL:   config["healthUrl"],
		HTTPClient:  client,
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &repo.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &repo.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := repo.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return repo, nil
}
