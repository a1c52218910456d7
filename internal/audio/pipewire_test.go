package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePwLink scripts pw-link: listing flags return ports, two-argument calls connect
type fakePwLink struct {
	ports     []string
	listErr   error
	connected [][2]string
}

func (f *fakePwLink) run(name string, args ...string) ([]byte, error) {
	if name != "pw-link" {
		return nil, errors.New("unexpected command " + name)
	}
	if len(args) == 1 {
		if f.listErr != nil {
			return nil, f.listErr
		}
		return []byte("Output ports:\n" + strings.Join(f.ports, "\n") + "\n"), nil
	}
	f.connected = append(f.connected, [2]string{args[0], args[1]})
	return nil, nil
}

func TestParsePorts(t *testing.T) {
	output := "Output ports:\n  system:capture_1\n\nChrome:output_FL\nInput ports:\nffmpeg:input_1\n"

	assert.Equal(t, []string{"system:capture_1", "Chrome:output_FL", "ffmpeg:input_1"}, parsePorts(output))
	assert.Empty(t, parsePorts(""))
}

func TestValidatePortInList(t *testing.T) {
	tests := []struct {
		name    string
		port    string
		ports   []string
		wantErr string
	}{
		{
			name:  "single port",
			port:  "system:capture_1",
			ports: []string{"Chrome:output_FL", "system:capture_1"},
		},
		{
			name:    "not found",
			port:    "nonexistent:port",
			ports:   []string{"Chrome:output_FL"},
			wantErr: "port not found",
		},
		{
			name: "true duplicate",
			port: "Chrome:output_FL",
			ports: []string{
				"Chrome:output_FL",
				"Chrome:output_FL",
				"Chrome-2:output_FL",
			},
			wantErr: "duplicate sources detected",
		},
		{
			name:  "different instances are not duplicates",
			port:  "Chrome-2:output_FL",
			ports: []string{"Chrome:output_FL", "Chrome-2:output_FL", "Chrome-3:output_FL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePortInList(tt.port, tt.ports)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindPortDuplicates(t *testing.T) {
	ports := []string{
		"Firefox:output_FL",
		"Firefox:output_FL",
		"Firefox (1):output_FL",
		"Chrome:output_FL",
	}

	assert.Equal(t, []string{"Firefox:output_FL", "Firefox:output_FL"}, findPortDuplicatesInList("Firefox:output_FL", ports))
	assert.Equal(t, []string{"Chrome:output_FL"}, findPortDuplicatesInList("Chrome:output_FL", ports))
	assert.Empty(t, findPortDuplicatesInList("system:capture_1", ports))
}

func TestPipeWire_ListOutputPorts(t *testing.T) {
	fake := &fakePwLink{ports: []string{"system:capture_1", "system:capture_2"}}
	pw := &PipeWire{run: fake.run}

	ports, err := pw.ListOutputPorts()
	require.NoError(t, err)
	assert.Equal(t, []string{"system:capture_1", "system:capture_2"}, ports)

	fake.listErr = errors.New("pw-link: not found")
	_, err = pw.ListOutputPorts()
	assert.ErrorContains(t, err, "failed to list PipeWire ports")
}

func TestPipeWire_ConnectPortsWithRetry(t *testing.T) {
	fake := &fakePwLink{ports: []string{"system:capture_1", "looprec_1:input_1"}}
	pw := &PipeWire{run: fake.run}

	err := pw.ConnectPortsWithRetry(context.Background(), "system:capture_1", "looprec_1:input_1")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"system:capture_1", "looprec_1:input_1"}}, fake.connected)
}

func TestPipeWire_ConnectPortsWithRetry_Cancelled(t *testing.T) {
	pw := &PipeWire{run: (&fakePwLink{}).run}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pw.ConnectPortsWithRetry(ctx, "missing:port", "looprec_1:input_1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeWire_WaitForPort_Timeout(t *testing.T) {
	pw := &PipeWire{run: (&fakePwLink{}).run}

	err := pw.WaitForPort(context.Background(), "looprec_1:input_1", 50*time.Millisecond)
	assert.ErrorContains(t, err, "timeout waiting for JACK port")
}
