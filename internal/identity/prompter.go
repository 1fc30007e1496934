package identity

import (
	"context"

	"go.pilab.hu/recovery/domain"
)

// Prompter runs the interactive part of a social sign-in: it shows authURL to
// the user and returns what the provider handed back. A dismissed prompt
// returns domain.ErrCredentialCancelled.
type Prompter interface {
	Prompt(ctx context.Context, kind domain.ProviderKind, authURL string) (*domain.Credential, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, kind domain.ProviderKind, authURL string) (*domain.Credential, error)

func (f PrompterFunc) Prompt(ctx context.Context, kind domain.ProviderKind, authURL string) (*domain.Credential, error) {
	return f(ctx, kind, authURL)
}
