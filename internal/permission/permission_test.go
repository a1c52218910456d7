package permission

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/looprec/internal/config"
)

func TestPrompter_Answers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"y", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(bufio.NewReader(strings.NewReader(tt.input)), &out)

			granted, err := p.RequestMicrophone(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, granted)
			assert.Equal(t, Question, out.String())
		})
	}
}

func TestPrompter_LeavesRemainingInput(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("y\nrpq\n"))
	p := NewPrompter(in, io.Discard)

	granted, err := p.RequestMicrophone(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	rest, err := in.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "rpq\n", rest)
}

func TestPrompter_ContextCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewPrompter(bufio.NewReader(r), io.Discard).RequestMicrophone(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPrompter_CancelledReadAnswersNextPrompt(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	in := bufio.NewReader(r)
	p := NewPrompter(in, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.RequestMicrophone(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go w.Write([]byte("y\n"))
	granted, err := p.RequestMicrophone(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	// no stray read is left behind to take later input
	go w.Write([]byte("r\n"))
	rest, err := in.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "r\n", rest)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	in := bufio.NewReader(strings.NewReader("y\n"))

	granted, err := FromConfig(config.PermissionsConfig{Microphone: config.PermissionGranted}, in, io.Discard).RequestMicrophone(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = FromConfig(config.PermissionsConfig{Microphone: config.PermissionDenied}, in, io.Discard).RequestMicrophone(ctx)
	require.NoError(t, err)
	assert.False(t, granted)

	p := FromConfig(config.PermissionsConfig{Microphone: config.PermissionPrompt}, in, io.Discard)
	assert.IsType(t, &Prompter{}, p)
}
