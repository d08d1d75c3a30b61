package toolclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrDuplicateLabel is returned when a label is already registered
	ErrDuplicateLabel = errors.New("tool server label already registered")
	// ErrUnknownServer is returned for a label that was never added
	ErrUnknownServer = errors.New("unknown tool server")
)

// Tool is one entry of a server catalog
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Server is a registered remote tool server
type Server struct {
	Label        string
	BaseURL      string
	Catalog      []Tool
	DiscoveredAt time.Time
}

// Registry maps labels to tool servers. It lives in memory only.
type Registry struct {
	servers map[string]*Server
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*Server)}
}

// Add registers a server under a unique label
func (r *Registry) Add(label, rawURL string) error {
	if label == "" || strings.ContainsAny(label, " \t\n/") {
		return fmt.Errorf("invalid tool server label %q", label)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid tool server url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid tool server url %q: expected http(s)://host", rawURL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[label]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, label)
	}
	r.servers[label] = &Server{
		Label:   label,
		BaseURL: strings.TrimRight(u.String(), "/"),
	}
	return nil
}

// Get returns a copy of the server registered under label
func (r *Registry) Get(label string) (Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.servers[label]
	if !ok {
		return Server{}, false
	}
	out := *s
	out.Catalog = append([]Tool(nil), s.Catalog...)
	return out, true
}

// Labels returns the registered labels in sorted order
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, 0, len(r.servers))
	for l := range r.servers {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Len returns the number of registered servers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// Catalog returns the last discovered catalog for label
func (r *Registry) Catalog(label string) []Tool {
	s, _ := r.Get(label)
	return s.Catalog
}

// replaceCatalog swaps in a freshly discovered catalog
func (r *Registry) replaceCatalog(label string, tools []Tool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.servers[label]; ok {
		s.Catalog = tools
		s.DiscoveredAt = at
	}
}
