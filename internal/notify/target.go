package notify

import (
	"context"
	"sync"

	"github.com/foundrly/platform/internal/models"
)

// Resolver renders a target of one kind to its display string.
type Resolver func(ctx context.Context, id int64) (string, error)

// ResolverRegistry resolves tagged target references on demand, keyed by
// kind. Notifications stay decoupled from every possible target type; a
// kind nobody registered falls back to the raw "<kind>:<id>" rendering.
type ResolverRegistry struct {
	mu     sync.RWMutex
	byKind map[string]Resolver
}

// NewResolverRegistry creates an empty registry.
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{byKind: make(map[string]Resolver)}
}

// Register installs the resolver for a kind, replacing any previous one.
func (r *ResolverRegistry) Register(kind string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = resolver
}

// Resolve renders the reference. Resolution failures degrade to the raw
// rendering rather than failing the notification.
func (r *ResolverRegistry) Resolve(ctx context.Context, ref models.TargetRef) string {
	r.mu.RLock()
	resolver, ok := r.byKind[ref.Kind]
	r.mu.RUnlock()

	if !ok {
		return ref.String()
	}
	rendered, err := resolver(ctx, ref.ID)
	if err != nil || rendered == "" {
		return ref.String()
	}
	return rendered
}

// UserResolver resolves "user" targets to usernames.
func UserResolver(users interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}) Resolver {
	return func(ctx context.Context, id int64) (string, error) {
		user, err := users.GetUserByID(ctx, id)
		if err != nil || user == nil {
			return "", err
		}
		return user.Username, nil
	}
}
