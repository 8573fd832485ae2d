package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sethfduke/ipclink/client"
	"github.com/sethfduke/ipclink/messages"
)

type requestArgs struct {
	url         string
	route       string
	data        string
	token       string
	secret      string
	peer        string
	destination string
}

// runRequest sends one request and writes the reply mapping as JSON. An
// error payload is printed as well and reported as the command's error.
func runRequest(ctx context.Context, out io.Writer, args requestArgs) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(args.data), &data); err != nil {
		return fmt.Errorf("--data must be a JSON object: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []client.Option{client.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))}
	if args.token != "" {
		opts = append(opts, client.WithToken(args.token))
	}
	if args.secret != "" {
		opts = append(opts, client.WithSecret([]byte(args.secret), args.peer))
	}

	c, err := client.Dial(ctx, args.url, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	var reqOpts []client.RequestOption
	if args.destination != "" {
		reqOpts = append(reqOpts, client.ToDestination(args.destination))
	}

	res, err := c.Request(ctx, args.route, data, reqOpts...)
	var rerr *messages.RemoteError
	if errors.As(err, &rerr) {
		_ = printMapping(out, messages.NewMessagePayload(
			messages.WithType(messages.KindError),
			messages.WithRoute(rerr.Route),
			messages.WithUUID(rerr.UUID),
			messages.WithTraceback(rerr.Traceback),
		))
		return rerr
	}
	if err != nil {
		return err
	}
	return printMapping(out, res)
}

func printMapping(out io.Writer, p *messages.MessagePayload) error {
	b, err := json.MarshalIndent(p.ToMapping(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
