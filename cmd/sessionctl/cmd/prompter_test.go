package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/recovery/domain"
)

func TestTerminalPrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("  4/0Acode \n"), &out)
	p.FirstName = "Ada"

	cred, err := p.Prompt(context.Background(), domain.ProviderApple, "https://appleid.apple.com/auth/authorize?x=1")
	require.NoError(t, err)
	assert.Equal(t, "4/0Acode", cred.Code)
	assert.Equal(t, domain.ProviderApple, cred.Kind)
	assert.Equal(t, "Ada", cred.FirstName)
	assert.Contains(t, out.String(), "https://appleid.apple.com/auth/authorize?x=1")
}

func TestTerminalPrompter_EmptyCancels(t *testing.T) {
	for _, input := range []string{"\n", "", "   \n"} {
		p := NewTerminalPrompter(strings.NewReader(input), &bytes.Buffer{})
		_, err := p.Prompt(context.Background(), domain.ProviderGoogle, "https://accounts.google.com")
		assert.ErrorIs(t, err, domain.ErrCredentialCancelled, "input %q", input)
	}
}

func TestTerminalPrompter_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	p := NewTerminalPrompter(pr, &bytes.Buffer{})
	_, err := p.Prompt(ctx, domain.ProviderGoogle, "https://accounts.google.com")
	assert.ErrorIs(t, err, context.Canceled)
}
