package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.pilab.hu/recovery/domain"
)

// TerminalPrompter shows the authorization URL and reads the code the user
// pastes back. An empty line cancels the sign-in.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer

	// Name parts forwarded with Apple credentials.
	FirstName string
	LastName  string
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, kind domain.ProviderKind, authURL string) (*domain.Credential, error) {
	fmt.Fprintf(p.out, "Open this URL to sign in with %s:\n\n  %s\n\n", kind, authURL)
	fmt.Fprint(p.out, "Paste the authorization code (empty to cancel): ")

	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		lines <- result{line, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-lines:
	}
	if r.err != nil && r.err != io.EOF {
		return nil, fmt.Errorf("failed to read authorization code: %w", r.err)
	}

	code := strings.TrimSpace(r.line)
	if code == "" {
		return nil, domain.ErrCredentialCancelled
	}
	return &domain.Credential{
		Kind:      kind,
		Code:      code,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}, nil
}
