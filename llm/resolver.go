package llm

import "context"

// ApiKeyResolver looks up the API key a given user has configured for a
// given provider. Implementations typically read from an encrypted
// per-user credential store; callers pass through context for tracing.
type ApiKeyResolver interface {
	Resolve(ctx context.Context, userID, provider string) (string, error)
}

// ProviderKeyMissingError indicates no API key was available for a
// provider, whether because the resolver found none or because a fallback
// chain was exhausted.
type ProviderKeyMissingError struct {
	Provider string
}

func (e *ProviderKeyMissingError) Error() string {
	return "no API key available for provider: " + e.Provider
}

// Factory builds a ChatModel for one provider given a resolved API key and
// a (possibly empty, provider-default) model name.
type Factory func(apiKey, modelName string) ChatModel

// Router resolves a node's configured provider (and fallback providers) to
// an API key and a registered Factory, trying each candidate in order until
// one succeeds.
type Router struct {
	factories map[string]Factory
	keys      ApiKeyResolver
}

// NewRouter builds a Router with no factories registered; call Register for
// each provider the deployment supports.
func NewRouter(keys ApiKeyResolver) *Router {
	return &Router{factories: make(map[string]Factory), keys: keys}
}

// Register binds a provider name ("openai", "anthropic", "google") to the
// Factory that builds its ChatModel.
func (r *Router) Register(provider string, f Factory) {
	r.factories[provider] = f
}

// Chat tries provider, then each of fallbackProviders in order, returning
// the first successful ChatOut. A provider is skipped (not attempted) when
// no Factory is registered for it or no API key resolves for it; those
// misses don't count as a call failure. Chat returns *ProviderKeyMissingError
// naming the primary provider only when every candidate (primary and
// fallbacks) has no factory or no key at all; any other terminal condition
// returns the last provider's call error.
func (r *Router) Chat(ctx context.Context, userID, provider, modelName string, fallbackProviders []string, messages []Message, tools []ToolSpec) (ChatOut, error) {
	candidates := append([]string{provider}, fallbackProviders...)

	var lastErr error
	anyKeyed := false

	for _, p := range candidates {
		factory, ok := r.factories[p]
		if !ok {
			continue
		}
		apiKey, err := r.keys.Resolve(ctx, userID, p)
		if err != nil || apiKey == "" {
			continue
		}
		anyKeyed = true

		model := factory(apiKey, modelName)
		out, err := model.Chat(ctx, messages, tools)
		if err == nil {
			out.Provider = p
			return out, nil
		}
		lastErr = err
	}

	if !anyKeyed {
		return ChatOut{}, &ProviderKeyMissingError{Provider: provider}
	}
	return ChatOut{}, lastErr
}
