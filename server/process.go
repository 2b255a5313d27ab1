package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reillywatson/reportsink/job"
	"github.com/reillywatson/reportsink/server/internal/jobprog"
	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/local"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrReferenceBusy  = errors.New("reference id already in progress")
)

// Process reads produce requests from in, runs each through the sink on its
// own goroutine and writes one response per request to out.
type Process struct {
	sink     local.Storage
	in       io.Reader
	out      io.Writer
	logger   *zap.Logger
	closer   sync.Once
	errClose error

	liveMu sync.Mutex
	live   map[string]struct{}
}

func NewProcess(s local.Storage, in io.Reader, out io.Writer, logger *zap.Logger) *Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{
		sink:   s,
		in:     in,
		out:    out,
		logger: logger,
		live:   make(map[string]struct{}),
	}
}

func (p *Process) Run(ctx context.Context) error {
	br := bufio.NewReader(p.in)
	jd := json.NewDecoder(br)

	bw := bufio.NewWriter(p.out)
	je := json.NewEncoder(bw)
	caps := []jobprog.Cmd{jobprog.CmdProduce, jobprog.CmdClose}
	if err := je.Encode(&jobprog.Response{KnownCommands: caps}); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	// guards writing responses
	var wmu sync.Mutex

	wg, ctx := errgroup.WithContext(ctx)
	if err := p.sink.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = wg.Wait()
		_ = p.close()
	}()
	for {
		req, err := p.parseRequest(jd)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		wg.Go(func() error {
			res := &jobprog.Response{ID: req.ID}
			if err := p.handleRequest(ctx, req, res); err != nil {
				res.Err = err.Error()
				if phase, ok := sink.PhaseOf(err); ok {
					res.Phase = string(phase)
				}
			}
			wmu.Lock()
			defer wmu.Unlock()
			_ = je.Encode(res)
			_ = bw.Flush()
			return nil
		})
	}
}

func (p *Process) parseRequest(jd *json.Decoder) (*jobprog.Request, error) {
	var req jobprog.Request
	if err := jd.Decode(&req); err != nil {
		return nil, err
	}
	if req.Command == jobprog.CmdProduce && req.BodySize > 0 {
		var bodyb []byte
		if err := jd.Decode(&bodyb); err != nil {
			return nil, err
		}
		if int64(len(bodyb)) != req.BodySize {
			return nil, fmt.Errorf("only got %d bytes of declared %d", len(bodyb), req.BodySize)
		}
		req.Body = bytes.NewReader(bodyb)
	}

	return &req, nil
}

func (p *Process) handleRequest(ctx context.Context, req *jobprog.Request, res *jobprog.Response) error {
	var err error
	switch req.Command {
	case jobprog.CmdProduce:
		err = p.handleProduce(ctx, req, res)
	case jobprog.CmdClose:
		err = p.close()
	default:
		return ErrUnknownCommand
	}
	if err != nil {
		p.logger.Debug("request failed", zap.Int64("id", req.ID), zap.String("command", string(req.Command)), zap.Error(err))
	}
	return err
}

func (p *Process) handleProduce(ctx context.Context, req *jobprog.Request, res *jobprog.Response) error {
	entry := job.Entry{Ref: req.Ref}
	if entry.Ref == "" {
		entry = job.NewEntry()
	}
	res.Ref = entry.Ref

	if !p.acquire(entry.Ref) {
		return fmt.Errorf("%w: %s", ErrReferenceBusy, entry.Ref)
	}
	defer p.release(entry.Ref)

	body := req.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}
	loc, err := p.sink.ProduceResult(ctx, entry, func(w io.Writer) error {
		_, err := io.Copy(w, body)
		return err
	})
	if err != nil {
		return err
	}
	res.Locator = loc.String()
	return nil
}

func (p *Process) acquire(ref string) bool {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()
	if _, ok := p.live[ref]; ok {
		return false
	}
	p.live[ref] = struct{}{}
	return true
}

func (p *Process) release(ref string) {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()
	delete(p.live, ref)
}

func (p *Process) close() error {
	p.closer.Do(func() {
		p.errClose = p.sink.Close()
		if p.errClose != nil {
			p.logger.Error("sink stop failed", zap.Error(p.errClose))
		}
	})
	return p.errClose
}
