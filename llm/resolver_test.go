package llm

import (
	"context"
	"errors"
	"testing"
)

type mapKeyResolver struct {
	keys map[string]string
	err  error
}

func (m mapKeyResolver) Resolve(_ context.Context, _, provider string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.keys[provider], nil
}

func TestRouterChatUsesPrimaryProviderWhenKeyed(t *testing.T) {
	router := NewRouter(mapKeyResolver{keys: map[string]string{"openai": "sk-test"}})
	mock := &MockChatModel{Responses: []ChatOut{{Text: "hi"}}}
	router.Register("openai", func(string, string) ChatModel { return mock })

	out, err := router.Chat(context.Background(), "user-1", "openai", "", nil, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Provider != "openai" {
		t.Fatalf("expected provider openai, got %q", out.Provider)
	}
}

func TestRouterChatFallsBackWhenPrimaryHasNoKey(t *testing.T) {
	router := NewRouter(mapKeyResolver{keys: map[string]string{"anthropic": "sk-test"}})
	primary := &MockChatModel{Responses: []ChatOut{{Text: "primary"}}}
	fallback := &MockChatModel{Responses: []ChatOut{{Text: "fallback"}}}
	router.Register("openai", func(string, string) ChatModel { return primary })
	router.Register("anthropic", func(string, string) ChatModel { return fallback })

	out, err := router.Chat(context.Background(), "user-1", "openai", "", []string{"anthropic"}, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Provider != "anthropic" {
		t.Fatalf("expected fallback to anthropic, got %q", out.Provider)
	}
	if primary.CallCount() != 0 {
		t.Fatalf("expected primary to be skipped entirely (no factory call), since it has no key")
	}
}

func TestRouterChatFallsBackOnCallError(t *testing.T) {
	router := NewRouter(mapKeyResolver{keys: map[string]string{"openai": "sk-a", "anthropic": "sk-b"}})
	primary := &MockChatModel{Err: errors.New("rate limited")}
	fallback := &MockChatModel{Responses: []ChatOut{{Text: "fallback"}}}
	router.Register("openai", func(string, string) ChatModel { return primary })
	router.Register("anthropic", func(string, string) ChatModel { return fallback })

	out, err := router.Chat(context.Background(), "user-1", "openai", "", []string{"anthropic"}, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Provider != "anthropic" {
		t.Fatalf("expected fallback after a primary call error, got %q", out.Provider)
	}
}

func TestRouterChatReturnsProviderKeyMissingWhenNoCandidateHasAKey(t *testing.T) {
	router := NewRouter(mapKeyResolver{keys: map[string]string{}})
	router.Register("openai", func(string, string) ChatModel { return &MockChatModel{} })

	_, err := router.Chat(context.Background(), "user-1", "openai", "", nil, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	var keyErr *ProviderKeyMissingError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected a ProviderKeyMissingError, got %v", err)
	}
	if keyErr.Provider != "openai" {
		t.Fatalf("expected the primary provider named in the error, got %q", keyErr.Provider)
	}
}

func TestRouterChatReturnsLastErrorWhenAllKeyedCandidatesFail(t *testing.T) {
	router := NewRouter(mapKeyResolver{keys: map[string]string{"openai": "sk-a", "anthropic": "sk-b"}})
	router.Register("openai", func(string, string) ChatModel { return &MockChatModel{Err: errors.New("openai down")} })
	router.Register("anthropic", func(string, string) ChatModel { return &MockChatModel{Err: errors.New("anthropic down")} })

	_, err := router.Chat(context.Background(), "user-1", "openai", "", []string{"anthropic"}, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err == nil || err.Error() != "anthropic down" {
		t.Fatalf("expected the last candidate's call error, got %v", err)
	}
}

func TestRouterChatSkipsUnregisteredProviders(t *testing.T) {
	router := NewRouter(mapKeyResolver{keys: map[string]string{"anthropic": "sk-b"}})
	fallback := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
	router.Register("anthropic", func(string, string) ChatModel { return fallback })

	out, err := router.Chat(context.Background(), "user-1", "not-registered", "", []string{"anthropic"}, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Provider != "anthropic" {
		t.Fatalf("expected the unregistered primary to be skipped in favor of the fallback, got %q", out.Provider)
	}
}
