package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/reillywatson/reportsink/job"
	"github.com/reillywatson/reportsink/server/internal/jobprog"
	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/local"
)

func runProcess(t *testing.T, s local.Storage, input string) map[int64]jobprog.Response {
	t.Helper()
	var out bytes.Buffer
	p := NewProcess(s, strings.NewReader(input), &out, zaptest.NewLogger(t))
	require.NoError(t, p.Run(context.Background()))

	jd := json.NewDecoder(&out)
	var hello jobprog.Response
	require.NoError(t, jd.Decode(&hello))
	assert.Equal(t, []jobprog.Cmd{jobprog.CmdProduce, jobprog.CmdClose}, hello.KnownCommands)

	responses := make(map[int64]jobprog.Response)
	for {
		var res jobprog.Response
		if err := jd.Decode(&res); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		responses[res.ID] = res
	}
	return responses
}

func TestProcess_Run(t *testing.T) {
	mem := local.NewMemory(nil)
	input := strings.Join([]string{
		`{"id":1,"command":"produce","ref":"job-42","body_size":9}`,
		`"UERGLUJZVEVT"`,
		`{"id":2,"command":"produce"}`,
		`{"id":3,"command":"bogus"}`,
		`{"id":4,"command":"produce","ref":"../x"}`,
	}, "\n")

	responses := runProcess(t, mem, input)
	require.Len(t, responses, 4)

	res := responses[1]
	assert.Empty(t, res.Err)
	assert.Equal(t, "job-42", res.Ref)
	assert.Equal(t, local.MemoryLocator("job-42").String(), res.Locator)
	got, ok := mem.Bytes("job-42")
	require.True(t, ok)
	assert.Equal(t, "PDF-BYTES", string(got))

	res = responses[2]
	assert.Empty(t, res.Err)
	_, err := uuid.Parse(res.Ref)
	assert.NoError(t, err, "missing reference ids are generated")
	got, ok = mem.Bytes(res.Ref)
	require.True(t, ok)
	assert.Empty(t, got)

	assert.Equal(t, ErrUnknownCommand.Error(), responses[3].Err)

	res = responses[4]
	assert.Empty(t, res.Locator)
	assert.Equal(t, string(sink.PhaseSetup), res.Phase)
	assert.Contains(t, res.Err, job.ErrInvalidReference.Error())
}

func TestProcess_RunWritesFiles(t *testing.T) {
	dir := t.TempDir()
	disk := local.NewDisk(zaptest.NewLogger(t), dir)
	input := `{"id":7,"command":"produce","ref":"job-42","body_size":9}` + "\n" + `"UERGLUJZVEVT"` + "\n" + `{"id":8,"command":"close"}`

	responses := runProcess(t, disk, input)
	res := responses[7]
	require.Empty(t, res.Err)

	loc := sink.Locator(res.Locator)
	want, err := filepath.Abs(filepath.Join(dir, "job-42"))
	require.NoError(t, err)
	assert.Equal(t, want, loc.Path())
	assert.Empty(t, responses[8].Err)
}

func TestProcess_RunStartFails(t *testing.T) {
	disk := local.NewDisk(nil, filepath.Join(t.TempDir(), "missing"))
	p := NewProcess(disk, strings.NewReader(""), io.Discard, nil)
	assert.Error(t, p.Run(context.Background()))
}

func TestProcess_ParseRequestShortBody(t *testing.T) {
	p := NewProcess(local.NewMemory(nil), strings.NewReader(""), io.Discard, nil)
	jd := json.NewDecoder(strings.NewReader(`{"id":1,"command":"produce","body_size":10}` + "\n" + `"UERGLUJZVEVT"`))
	_, err := p.parseRequest(jd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only got 9 bytes of declared 10")
}

func TestProcess_RejectsLiveReference(t *testing.T) {
	p := NewProcess(local.NewMemory(nil), strings.NewReader(""), io.Discard, nil)
	require.True(t, p.acquire("job-1"))

	res := &jobprog.Response{}
	err := p.handleProduce(context.Background(), &jobprog.Request{Command: jobprog.CmdProduce, Ref: "job-1"}, res)
	assert.True(t, errors.Is(err, ErrReferenceBusy))
	assert.Empty(t, res.Locator)

	p.release("job-1")
	require.NoError(t, p.handleProduce(context.Background(), &jobprog.Request{Command: jobprog.CmdProduce, Ref: "job-1"}, res))
	assert.NotEmpty(t, res.Locator)
}
